// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd holds implementations of the vspacectl commands.
package cmd

import (
	"fmt"
	"os"

	"vspace.dev/vspace/pkg/cleanup"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/platform"
	"vspace.dev/vspace/pkg/pmem"
	"vspace.dev/vspace/pkg/vspace"
)

// Fatalf logs to stderr and the debug log, then exits with an error.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf("FATAL: "+format, args...)
	os.Exit(128)
}

// platformArg returns the platform passed to subcommands.Execute.
func platformArg(args []any) *platform.Platform {
	return args[0].(*platform.Platform)
}

// machine is a booted kernel together with its physical memory state.
type machine struct {
	*vspace.Kernel
	res   *pmem.Reservations
	arena *pmem.Arena

	// frames is memory set aside for user frames.
	frames pmem.Region
}

// boot builds and boots a kernel for p. The directly mapped memory above
// the kernel image is split in two: table frames come from the lower half,
// user frames from the upper one.
func boot(p *platform.Platform) (*machine, error) {
	l := pagetables.NewLayout(p)
	start, ok := p.KernelELFPAddrTop().RoundUp()
	end := min(p.PhysTop, l.PAddrTop).RoundDown()
	if !ok || end < start+2*hostarch.HugePageSize {
		return nil, fmt.Errorf("no memory above the kernel image at %v", p.KernelELFPAddrTop())
	}
	mid := hostarch.PAddr(uint64(start+(end-start)/2) &^ (hostarch.HugePageSize - 1))
	if mid <= start {
		mid = end - hostarch.HugePageSize
	}

	res := pmem.NewReservations()
	if !res.Reserve(mid, end) {
		return nil, fmt.Errorf("reserving user frames [%v, %v)", mid, end)
	}
	arena, err := pmem.NewArena(start, mid, res)
	if err != nil {
		return nil, err
	}
	k, err := vspace.New(p, arena, res)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(k.Close)
	defer cu.Clean()
	k.Boot()
	used, available := arena.Stats()
	log.Infof("Booted %s on %q: %d tables used, %d available", pagetables.Arch, p.Name, used, available)
	cu.Release()
	return &machine{Kernel: k, res: res, arena: arena, frames: pmem.Region{Start: mid, End: end}}, nil
}

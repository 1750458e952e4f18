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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	start hostarch.VAddr
	last  hostarch.VAddr
	limit int
}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "print the leaves of the kernel window"
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump [flags] - print the leaves of the kernel window.

The default range covers the kernel image alias and the device window.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.TextVar(&d.start, "start", hostarch.VAddr(0), "first address to dump; the kernel image alias when zero.")
	f.TextVar(&d.last, "last", hostarch.VAddr(0), "last address to dump; the top of the address space when zero.")
	f.IntVar(&d.limit, "max", 64, "maximum number of leaves to print; 0 prints all of them.")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	m, err := boot(platformArg(args))
	if err != nil {
		Fatalf("booting: %v", err)
	}
	defer m.Close()

	start, last := d.start, d.last
	if start == 0 {
		start = m.Window().KernelELFBase
	}
	if last == 0 {
		last = ^hostarch.VAddr(0)
	}
	if start > last {
		Fatalf("empty range [%v, %v]", start, last)
	}
	dump(os.Stdout, m.Allocator(), m.Window().Root(), start, last, d.limit)
	return subcommands.ExitSuccess
}

// dump prints the leaves below root in [start, last], at most limit of them
// unless limit is zero. It returns the number printed.
func dump(w io.Writer, a pagetables.Allocator, root *pagetables.PTEs, start, last hostarch.VAddr, limit int) int {
	n := 0
	pagetables.Walk(a, root, start, last, func(addr hostarch.VAddr, bitsLeft uint, pte pagetables.PTE) bool {
		if limit > 0 && n == limit {
			fmt.Fprintf(w, "...\n")
			return false
		}
		d := pagetables.Decode(pte)
		size, _ := pagetables.PageSizeForBits(bitsLeft)
		fmt.Fprintf(w, "%v %-5v -> %v %s\n", addr, size, d.Addr, describe(d))
		n++
		return true
	})
	return n
}

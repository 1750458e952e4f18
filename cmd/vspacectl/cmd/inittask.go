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
	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/vspace"
)

// InitTask implements subcommands.Command for the "init-task" command.
type InitTask struct {
	vaddr  hostarch.VAddr
	frames int
	large  bool
}

// Name implements subcommands.Command.Name.
func (*InitTask) Name() string {
	return "init-task"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*InitTask) Synopsis() string {
	return "build and activate the initial task's address space"
}

// Usage implements subcommands.Command.Usage.
func (*InitTask) Usage() string {
	return `init-task [flags] - build and activate the initial task's address space.

A root is bound to the initial task's ASID through the first ASID pool, the
tables covering the image are linked and consecutive user frames are mapped
from the image address. The first frame is executable.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *InitTask) SetFlags(f *flag.FlagSet) {
	f.TextVar(&t.vaddr, "vaddr", hostarch.VAddr(0x400000), "user address of the image.")
	f.IntVar(&t.frames, "frames", 16, "number of frames to map.")
	f.BoolVar(&t.large, "large", false, "map 2MiB frames instead of 4KiB ones.")
}

// Execute implements subcommands.Command.Execute.
func (t *InitTask) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	m, err := boot(platformArg(args))
	if err != nil {
		Fatalf("booting: %v", err)
	}
	defer m.Close()
	if err := t.run(os.Stdout, m); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (t *InitTask) run(w io.Writer, m *machine) error {
	frameSize := pagetables.SmallPage
	if t.large {
		frameSize = pagetables.LargePage
	}
	size := frameSize.Bytes()
	if t.frames <= 0 || uint64(t.vaddr)&(size-1) != 0 {
		return fmt.Errorf("need a positive frame count and an address aligned to %#x", size)
	}
	length := uint64(t.frames) * size
	end, ok := t.vaddr.AddLength(length)
	if !ok || end-1 > pagetables.UserTop {
		return fmt.Errorf("image [%v, +%#x) leaves the user half", t.vaddr, length)
	}
	if length > m.frames.Length() {
		return fmt.Errorf("image needs %#x bytes, only %#x available", length, m.frames.Length())
	}

	c := m.Core(0)
	root, err := c.CreateRootCap(asid.InitialTask)
	if err != nil {
		return err
	}
	if err := c.WriteInitialASIDPool(vspace.PoolCap{Base: asid.Base(0), Pool: asid.NewPool()}, root); err != nil {
		return err
	}
	tables, err := c.CreateTableCaps(root, t.vaddr, end, frameSize)
	if err != nil {
		return err
	}
	for i := 0; i < t.frames; i++ {
		offset := uint64(i) * size
		if _, err := c.CreateMappedFrameCap(root, m.frames.Start+hostarch.PAddr(offset), t.vaddr+hostarch.VAddr(offset), asid.InitialTask, t.large, i == 0); err != nil {
			return err
		}
	}
	if err := c.SetActiveUserRoot(root); err != nil {
		return err
	}

	a, active := c.ActiveUserRoot()
	fmt.Fprintf(w, "root %v bound to %v, active on cpu%d as %v\n", root.Base, asid.InitialTask, c.ID(), a)
	if active != root.Base {
		return fmt.Errorf("cpu%d runs %v, not %v", c.ID(), active, root.Base)
	}
	fmt.Fprintf(w, "%d tables, %d frames, %d broadcasts\n", len(tables), t.frames, m.Machine().IPIs())
	dump(w, m.Allocator(), m.Allocator().LookupPTEs(root.Base), t.vaddr, end-1, 0)
	return nil
}

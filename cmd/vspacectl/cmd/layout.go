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
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/platform"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct{}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the kernel window layout of the platform"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return "layout - print the kernel window layout of the platform.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Layout) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Layout) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	printLayout(os.Stdout, platformArg(args))
	return subcommands.ExitSuccess
}

func printLayout(w io.Writer, p *platform.Platform) {
	l := pagetables.NewLayout(p)
	fmt.Fprintf(w, "format:      %s, %d levels\n", pagetables.Arch, pagetables.Levels)
	fmt.Fprintf(w, "direct map:  [%v, %v) -> [%v, %v)\n", pagetables.PPTRBase, pagetables.PPTRTop, l.PAddrBase, l.PAddrTop)
	fmt.Fprintf(w, "kernel elf:  [%v, %v) -> [%v, %v)\n", l.KernelELFBase, l.KernelELFTop(), l.KernelELFPAddrBase, l.KernelELFPAddrTop)
	fmt.Fprintf(w, "page tables: %v\n", l.PageTableBase)
	fmt.Fprintf(w, "devices:     %v\n", pagetables.KDevBase)
	fmt.Fprintf(w, "user top:    %v\n", pagetables.UserTop)
}

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
)

// Devices implements subcommands.Command for the "devices" command.
type Devices struct{}

// Name implements subcommands.Command.Name.
func (*Devices) Name() string {
	return "devices"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Devices) Synopsis() string {
	return "list the device frames mapped in the kernel window"
}

// Usage implements subcommands.Command.Usage.
func (*Devices) Usage() string {
	return `devices - list the device frames mapped in the kernel window.

Each line shows the device, its kernel address, the frame it translates to and
whether the frame is withheld from user memory.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Devices) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Devices) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	m, err := boot(platformArg(args))
	if err != nil {
		Fatalf("booting: %v", err)
	}
	defer m.Close()
	printDevices(os.Stdout, m)
	return subcommands.ExitSuccess
}

func printDevices(w io.Writer, m *machine) {
	win := m.Window()
	for _, d := range win.Devices() {
		physical, dec, _, ok := win.Translate(d.VAddr)
		if !ok {
			fmt.Fprintf(w, "%-8s %v not mapped\n", d.Name, d.VAddr)
			continue
		}
		fmt.Fprintf(w, "%-8s %v -> %v %s reserved=%t\n", d.Name, d.VAddr, physical, describe(dec), m.res.Reserved(d.PAddr))
	}
}

// describe formats the attributes of a leaf.
func describe(d pagetables.Decoded) string {
	x := "-"
	if d.Attrs.Executable {
		x = "x"
	}
	s := fmt.Sprintf("%v %s %s", d.Attrs.Rights, x, d.Attrs.MemoryType.ShortString())
	if d.Attrs.Global {
		s += " global"
	}
	return s
}

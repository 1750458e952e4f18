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
)

// Translate implements subcommands.Command for the "translate" command.
type Translate struct{}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "translate kernel virtual addresses through the kernel window"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return `translate <vaddr>... - translate kernel virtual addresses.

EXAMPLE:
    $ vspacectl translate 0xffffff8000001000 0xffffffffffe00000
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Translate) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Translate) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	addrs := make([]hostarch.VAddr, 0, f.NArg())
	for _, arg := range f.Args() {
		var v hostarch.VAddr
		if err := v.UnmarshalText([]byte(arg)); err != nil {
			Fatalf("%v", err)
		}
		addrs = append(addrs, v)
	}

	m, err := boot(platformArg(args))
	if err != nil {
		Fatalf("booting: %v", err)
	}
	defer m.Close()
	if n := translate(os.Stdout, m, addrs); n != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// translate prints the translation of each address and returns how many
// were not mapped.
func translate(w io.Writer, m *machine, addrs []hostarch.VAddr) int {
	missing := 0
	for _, v := range addrs {
		physical, d, bitsLeft, ok := m.Window().Translate(v)
		if !ok {
			fmt.Fprintf(w, "%v: not mapped (%d bits left)\n", v, bitsLeft)
			missing++
			continue
		}
		fmt.Fprintf(w, "%v: %v (%d bits, %s)\n", v, physical, bitsLeft, describe(d))
	}
	return missing
}

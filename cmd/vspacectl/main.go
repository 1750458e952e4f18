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

// Binary vspacectl builds the kernel address space for a platform
// description and inspects the result.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"vspace.dev/vspace/cmd/vspacectl/cmd"
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/platform"
)

var (
	platformFile = flag.String("platform", "", "Platform description, TOML or YAML (.yaml, .yml). The built in platform is used when empty.")
	debug        = flag.Bool("debug", false, "enable debug logging.")
	logFormat    = flag.String("log-format", "text", "log format: text (default) or json.")
	logFile      = flag.String("log", "", "file to log to; %PLATFORM% is replaced by the platform name. Logs go to stderr when empty.")
)

// logOpts names log files after the platform.
type logOpts struct {
	platform string
}

// Build implements log.FileOpts.Build.
func (o logOpts) Build(pattern string) string {
	return strings.ReplaceAll(pattern, "%PLATFORM%", o.platform)
}

func newEmitter(format string, w io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: w}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: w}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(cmd.Layout), "")
	subcommands.Register(new(cmd.Devices), "")
	subcommands.Register(new(cmd.Translate), "")
	subcommands.Register(new(cmd.Dump), "")
	subcommands.Register(new(cmd.InitTask), "")
	flag.Parse()

	p := platform.Default()
	if *platformFile != "" {
		var err error
		if p, err = platform.Load(*platformFile); err != nil {
			cmd.Fatalf("%v", err)
		}
	}

	var out io.Writer = os.Stderr
	if *logFile != "" {
		f, err := log.OpenFile(*logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, logOpts{platform: p.Name})
		if err != nil {
			cmd.Fatalf("%v", err)
		}
		defer f.Close()
		out = f
	}
	log.SetTarget(newEmitter(*logFormat, out))
	if *debug {
		log.SetLevel(log.Debug)
	}
	if err := log.CopyStandardLogTo(log.Info); err != nil {
		cmd.Fatalf("%v", err)
	}
	log.Debugf("Platform %q: %d cores, memory [%v, %v)", p.Name, p.Cores, p.PhysBase, p.PhysTop)

	os.Exit(int(subcommands.Execute(context.Background(), p)))
}

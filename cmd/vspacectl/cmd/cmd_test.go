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
	"bytes"
	"strings"
	"testing"

	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/platform"
)

func bootDefault(t *testing.T) *machine {
	t.Helper()
	m, err := boot(platform.Default())
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestBootSplitsMemory(t *testing.T) {
	m := bootDefault(t)
	arena := m.arena.Region()
	if arena.End != m.frames.Start {
		t.Errorf("tables end at %v, frames start at %v", arena.End, m.frames.Start)
	}
	if m.frames.Start&(hostarch.HugePageSize-1) != 0 {
		t.Errorf("frames start at %v, want 2MiB alignment", m.frames.Start)
	}
	for _, p := range []hostarch.PAddr{arena.Start, m.frames.Start, m.frames.End - 1} {
		if !m.res.Reserved(p) {
			t.Errorf("%v not reserved", p)
		}
	}
	if !m.Booted() {
		t.Errorf("kernel not booted")
	}
}

func TestBootNoMemory(t *testing.T) {
	p := platform.Default()
	p.PhysTop = p.KernelELFPAddrTop() + hostarch.HugePageSize
	if _, err := boot(p); err == nil {
		t.Errorf("boot succeeded without memory above the image")
	}
}

func TestPrintLayout(t *testing.T) {
	var buf bytes.Buffer
	printLayout(&buf, platform.Default())
	out := buf.String()
	for _, want := range []string{pagetables.Arch, pagetables.PPTRBase.String(), pagetables.KDevBase.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("layout does not mention %s:\n%s", want, out)
		}
	}
}

func TestPrintDevices(t *testing.T) {
	m := bootDefault(t)
	var buf bytes.Buffer
	printDevices(&buf, m)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	devices := m.Window().Devices()
	if len(lines) != len(devices) {
		t.Fatalf("got %d lines for %d devices:\n%s", len(lines), len(devices), buf.String())
	}
	for i, d := range devices {
		if !strings.HasPrefix(lines[i], d.Name) || !strings.Contains(lines[i], d.PAddr.String()) {
			t.Errorf("line %q does not describe %s at %v", lines[i], d.Name, d.PAddr)
		}
		if want := "reserved=" + map[bool]string{true: "false", false: "true"}[d.UserAvailable]; !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %q, want suffix %s", lines[i], want)
		}
	}
}

func TestTranslate(t *testing.T) {
	m := bootDefault(t)
	var buf bytes.Buffer
	l := m.Window().Layout
	addrs := []hostarch.VAddr{
		pagetables.PPTRBase + 0x1234,
		l.KernelELFBase,
		0x1000,
	}
	if got := translate(&buf, m, addrs); got != 1 {
		t.Errorf("translate reported %d missing addresses, want 1", got)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i, want := range []string{
		(l.PAddrBase + 0x1234).String(),
		l.KernelELFPAddrBase.String(),
		"not mapped",
	} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %q does not contain %q", lines[i], want)
		}
	}
}

func TestDumpLimit(t *testing.T) {
	m := bootDefault(t)
	var buf bytes.Buffer
	w := m.Window()
	if n := dump(&buf, m.Allocator(), w.Root(), w.KernelELFBase, ^hostarch.VAddr(0), 3); n != 3 {
		t.Errorf("dump printed %d leaves, want 3", n)
	}
	if !strings.HasSuffix(buf.String(), "...\n") {
		t.Errorf("truncated dump not marked:\n%s", buf.String())
	}
}

func TestDumpSingleAddress(t *testing.T) {
	m := bootDefault(t)
	w := m.Window()
	d := w.Devices()[0]
	var buf bytes.Buffer
	if n := dump(&buf, m.Allocator(), w.Root(), d.VAddr, d.VAddr, 0); n != 1 {
		t.Errorf("dump of %v printed %d leaves, want 1:\n%s", d.VAddr, n, buf.String())
	}
}

func TestInitTask(t *testing.T) {
	for _, tc := range []struct {
		name string
		task InitTask
	}{
		{"small", InitTask{vaddr: 0x400000, frames: 4}},
		{"large", InitTask{vaddr: 0x400000, frames: 2, large: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := bootDefault(t)
			var buf bytes.Buffer
			if err := tc.task.run(&buf, m); err != nil {
				t.Fatalf("run: %v", err)
			}
			out := buf.String()
			if got := strings.Count(out, "->"); got != tc.task.frames {
				t.Errorf("dump shows %d leaves, want %d:\n%s", got, tc.task.frames, out)
			}
			if !strings.Contains(out, m.frames.Start.String()) {
				t.Errorf("first frame %v not mapped:\n%s", m.frames.Start, out)
			}
		})
	}
}

func TestInitTaskBadArguments(t *testing.T) {
	m := bootDefault(t)
	for _, task := range []InitTask{
		{vaddr: 0x400800, frames: 1},
		{vaddr: 0x401000, frames: 1, large: true},
		{vaddr: 0x400000, frames: 0},
		{vaddr: pagetables.UserTop &^ (hostarch.PageSize - 1), frames: 2},
	} {
		if err := task.run(&bytes.Buffer{}, m); err == nil {
			t.Errorf("run(%+v) succeeded", task)
		}
	}
}

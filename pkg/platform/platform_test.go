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

package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const virt = `
name = "board"
phys_base = "0x40000000"
phys_top = "0x80000000"
kernel_elf_paddr = "0x40200000"
kernel_image_size = 0x400000
page_table_offset = 0x100000
cores = 2
l1_cache_line_bits = 6
outer_cache = true

[[device]]
name = "uart"
paddr = "0x09000000"
vaddr = "0xffffffffffe00000"

[[device]]
name = "timer"
paddr = "0x09010000"
vaddr = "0xffffffffffe01000"
user_available = true
cacheable = true
`

func TestParse(t *testing.T) {
	got, err := Parse(virt)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := &Platform{
		Name:            "board",
		PhysBase:        0x40000000,
		PhysTop:         0x80000000,
		KernelELFPAddr:  0x40200000,
		KernelImageSize: 0x400000,
		PageTableOffset: 0x100000,
		Cores:           2,
		L1CacheLineBits: 6,
		OuterCache:      true,
		Devices: []DeviceFrame{
			{Name: "uart", PAddr: 0x09000000, VAddr: 0xffffffffffe00000},
			{Name: "timer", PAddr: 0x09010000, VAddr: 0xffffffffffe01000, UserAvailable: true, Cacheable: true},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	if !got.SMP() {
		t.Errorf("SMP() = false for two cores")
	}
	if got, want := got.CacheLineSize(), uint64(64); got != want {
		t.Errorf("CacheLineSize() = %d, want %d", got, want)
	}
}

const virtYAML = `
name: board
phys_base: "0x40000000"
phys_top: "0x80000000"
kernel_elf_paddr: "0x40200000"
kernel_image_size: 4194304
page_table_offset: 1048576
cores: 2
l1_cache_line_bits: 6
outer_cache: true
device:
  - name: uart
    paddr: "0x09000000"
    vaddr: "0xffffffffffe00000"
  - name: timer
    paddr: "0x09010000"
    vaddr: "0xffffffffffe01000"
    user_available: true
    cacheable: true
`

func TestParseYAML(t *testing.T) {
	want, err := Parse(virt)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, err := ParseYAML(virtYAML)
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("YAML and TOML descriptions differ (-toml +yaml):\n%s", diff)
	}
	if _, err := ParseYAML("bogus: 1\n" + virtYAML); err == nil {
		t.Errorf("ParseYAML accepted an unknown key")
	}
	if _, err := ParseYAML(strings.Replace(virtYAML, "cores: 2", "cores: 0", 1)); err == nil {
		t.Errorf("ParseYAML accepted zero cores")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, []byte(virtYAML), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "board" || len(p.Devices) != 2 {
		t.Errorf("Load = %+v", p)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.toml")
	if err := os.WriteFile(path, []byte(virt), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "board" {
		t.Errorf("Name = %q, want %q", p.Name, "board")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load of a missing file succeeded")
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(string) string
		want string
	}{
		{
			name: "unknown key",
			edit: func(s string) string { return "bogus = 1\n" + s },
			want: "unknown platform keys: bogus",
		},
		{
			name: "bad address",
			edit: func(s string) string { return strings.Replace(s, `"0x40200000"`, `"kernel"`, 1) },
			want: "invalid address",
		},
		{
			name: "zero cores",
			edit: func(s string) string { return strings.Replace(s, "cores = 2", "cores = 0", 1) },
			want: "cores must be in",
		},
		{
			name: "unaligned kernel",
			edit: func(s string) string { return strings.Replace(s, `"0x40200000"`, `"0x40200800"`, 1) },
			want: "kernel_elf_paddr 0x40200800 is not page aligned",
		},
		{
			name: "kernel outside RAM",
			edit: func(s string) string { return strings.Replace(s, `"0x40200000"`, `"0x7ff00000"`, 1) },
			want: "lies outside RAM",
		},
		{
			name: "duplicate device",
			edit: func(s string) string { return strings.Replace(s, `"0xffffffffffe01000"`, `"0xffffffffffe00000"`, 1) },
			want: "already used by uart",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.edit(virt))
			if err == nil {
				t.Fatalf("Parse succeeded, want error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Parse error = %q, want it to contain %q", err, tc.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestClone(t *testing.T) {
	p := Default()
	c := p.Clone()
	if diff := cmp.Diff(p, c); diff != "" {
		t.Fatalf("Clone mismatch (-orig +clone):\n%s", diff)
	}
	c.Devices[0].PAddr++
	c.Cores++
	if p.Devices[0].PAddr == c.Devices[0].PAddr || p.Cores == c.Cores {
		t.Errorf("Clone shares state with the original")
	}
}

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

// Package platform describes the board the kernel runs on: where physical
// memory and the kernel image live, which device frames the kernel maps for
// itself, and the processor and cache topology.
//
// Descriptions are TOML files, e.g.:
//
//	name = "virt"
//	phys_base = "0x40000000"
//	phys_top = "0x80000000"
//	kernel_elf_paddr = "0x40000000"
//	kernel_image_size = 0x400000
//	page_table_offset = 0x100000
//	cores = 4
//	l1_cache_line_bits = 6
//
//	[[device]]
//	name = "uart"
//	paddr = "0x09000000"
//	vaddr = "0xffffffffffe00000"
//
// Addresses are strings because TOML integers are signed. Files ending in
// .yaml or .yml hold the same keys in YAML.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
	"vspace.dev/vspace/pkg/hostarch"
)

// MaxCores is the largest number of processors a platform may declare. Core
// sets are 64-bit masks.
const MaxCores = 64

// DeviceFrame is a fixed-function device page the kernel maps into its own
// window at boot.
type DeviceFrame struct {
	// Name is informational.
	Name string `toml:"name" yaml:"name"`

	// PAddr is the physical address of the frame.
	PAddr hostarch.PAddr `toml:"paddr" yaml:"paddr"`

	// VAddr is the fixed kernel virtual address of the mapping.
	VAddr hostarch.VAddr `toml:"vaddr" yaml:"vaddr"`

	// UserAvailable frames may later be handed to user space. All other
	// frames are reserved with the physical memory allocator.
	UserAvailable bool `toml:"user_available" yaml:"user_available"`

	// Executable allows kernel instruction fetch from the frame.
	Executable bool `toml:"executable" yaml:"executable"`

	// Cacheable maps the frame as normal memory instead of device memory.
	Cacheable bool `toml:"cacheable" yaml:"cacheable"`
}

// Platform is a board description.
type Platform struct {
	// Name is informational.
	Name string `toml:"name" yaml:"name"`

	// PhysBase and PhysTop bound the RAM of the board.
	PhysBase hostarch.PAddr `toml:"phys_base" yaml:"phys_base"`
	PhysTop  hostarch.PAddr `toml:"phys_top" yaml:"phys_top"`

	// KernelELFPAddr is the physical load address of the kernel image.
	KernelELFPAddr hostarch.PAddr `toml:"kernel_elf_paddr" yaml:"kernel_elf_paddr"`

	// KernelImageSize is the size of the loaded kernel image in bytes.
	KernelImageSize uint64 `toml:"kernel_image_size" yaml:"kernel_image_size"`

	// PageTableOffset is the offset of the statically allocated kernel page
	// tables from the start of the kernel image.
	PageTableOffset uint64 `toml:"page_table_offset" yaml:"page_table_offset"`

	// Cores is the number of processors. More than one selects the
	// multiprocessor maintenance paths.
	Cores int `toml:"cores" yaml:"cores"`

	// L1CacheLineBits is log2 of the L1 data cache line size.
	L1CacheLineBits uint `toml:"l1_cache_line_bits" yaml:"l1_cache_line_bits"`

	// OuterCache is set when the board has a second-level cache that must
	// be maintained separately.
	OuterCache bool `toml:"outer_cache" yaml:"outer_cache"`

	// Devices are the kernel device frames.
	Devices []DeviceFrame `toml:"device" yaml:"device"`
}

// SMP returns true if the platform has more than one processor.
func (p *Platform) SMP() bool {
	return p.Cores > 1
}

// CacheLineSize returns the L1 data cache line size in bytes.
func (p *Platform) CacheLineSize() uint64 {
	return 1 << p.L1CacheLineBits
}

// KernelELFPAddrTop returns the end of the kernel image in physical memory.
func (p *Platform) KernelELFPAddrTop() hostarch.PAddr {
	return p.KernelELFPAddr + hostarch.PAddr(p.KernelImageSize)
}

// Clone returns a deep copy of p.
func (p *Platform) Clone() *Platform {
	return deepcopy.Copy(p).(*Platform)
}

// Validate checks the arch-independent constraints of the description.
func (p *Platform) Validate() error {
	var errs []error
	check := func(ok bool, format string, v ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, v...))
		}
	}
	check(p.Cores >= 1 && p.Cores <= MaxCores, "cores must be in [1, %d], got %d", MaxCores, p.Cores)
	check(p.L1CacheLineBits >= 4 && p.L1CacheLineBits <= 8, "l1_cache_line_bits must be in [4, 8], got %d", p.L1CacheLineBits)
	check(p.PhysBase.IsPageAligned(), "phys_base %v is not page aligned", p.PhysBase)
	check(p.PhysTop.IsPageAligned(), "phys_top %v is not page aligned", p.PhysTop)
	check(p.PhysTop > p.PhysBase, "phys_top %v must be above phys_base %v", p.PhysTop, p.PhysBase)
	check(p.KernelELFPAddr.IsPageAligned(), "kernel_elf_paddr %v is not page aligned", p.KernelELFPAddr)
	check(p.KernelImageSize > 0 && p.KernelImageSize%hostarch.PageSize == 0, "kernel_image_size %#x must be a non-zero multiple of the page size", p.KernelImageSize)
	check(p.KernelELFPAddr >= p.PhysBase && p.KernelELFPAddrTop() <= p.PhysTop, "kernel image [%v, %v) lies outside RAM [%v, %v)", p.KernelELFPAddr, p.KernelELFPAddrTop(), p.PhysBase, p.PhysTop)
	check(p.PageTableOffset%hostarch.PageSize == 0 && p.PageTableOffset < p.KernelImageSize, "page_table_offset %#x must be page aligned and inside the kernel image", p.PageTableOffset)

	seen := make(map[hostarch.VAddr]string)
	for i, d := range p.Devices {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("device[%d]", i)
		}
		check(d.PAddr.IsPageAligned(), "%s: paddr %v is not page aligned", name, d.PAddr)
		check(d.VAddr.IsPageAligned(), "%s: vaddr %v is not page aligned", name, d.VAddr)
		if other, ok := seen[d.VAddr]; ok {
			errs = append(errs, fmt.Errorf("%s: vaddr %v already used by %s", name, d.VAddr, other))
		}
		seen[d.VAddr] = name
	}
	return errors.Join(errs...)
}

// Parse decodes and validates a TOML description.
func Parse(data string) (*Platform, error) {
	var p Platform
	md, err := toml.Decode(data, &p)
	if err != nil {
		return nil, fmt.Errorf("decoding platform: %w", err)
	}
	return finish(&p, md)
}

// ParseYAML decodes and validates a YAML description.
func ParseYAML(data string) (*Platform, error) {
	var p Platform
	dec := yaml.NewDecoder(strings.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding platform: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads, decodes and validates the description at path. The format
// follows the file extension.
func Load(path string) (*Platform, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading platform: %w", err)
		}
		return ParseYAML(string(data))
	}
	var p Platform
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("reading platform %q: %w", path, err)
	}
	return finish(&p, md)
}

func finish(p *Platform, md toml.MetaData) (*Platform, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown platform keys: %s", strings.Join(keys, ", "))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

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

//go:build riscv64 || sv39

package pagetables

import (
	"fmt"

	"vspace.dev/vspace/pkg/bits"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/platform"
)

// kernelTables are the statically allocated kernel window tables.
//
// l1 is the root and maps the direct map with 1GiB leaves. The GiB holding
// the kernel image is instead mapped by elf, with 2MiB leaves, and elf is
// also linked at the image's own alias. dev holds the device window.
type kernelTables struct {
	l1  PTEs
	elf PTEs
	dev PTEs
}

func (t *kernelTables) all() []*PTEs {
	return []*PTEs{&t.l1, &t.elf, &t.dev}
}

func (t *kernelTables) root() *PTEs {
	return &t.l1
}

// userRoot is the kernel root itself: it maps nothing below UserTop.
func (t *kernelTables) userRoot() *PTEs {
	return &t.l1
}

func (w *KernelWindow) checkLayout() error {
	if w.KernelELFPAddrTop > w.PAddrTop {
		return fmt.Errorf("kernel image [%v, %v) lies outside the direct mapped range [%v, %v)", w.KernelELFPAddrBase, w.KernelELFPAddrTop, w.PAddrBase, w.PAddrTop)
	}
	giB := bits.AlignDown64(uint64(w.KernelELFPAddrBase), hostarch.GiantPageSize)
	if uint64(w.KernelELFPAddrTop)-giB > hostarch.GiantPageSize {
		return fmt.Errorf("kernel image [%v, %v) crosses a 1GiB boundary", w.KernelELFPAddrBase, w.KernelELFPAddrTop)
	}
	return nil
}

func (w *KernelWindow) checkDevice(d platform.DeviceFrame) error {
	if d.VAddr < KDevBase {
		return fmt.Errorf("device %q: address %v is not in the device window [%v, 2^64)", d.Name, d.VAddr, KDevBase)
	}
	if uint64(d.VAddr)&(hostarch.HugePageSize-1) != uint64(d.PAddr)&(hostarch.HugePageSize-1) {
		return fmt.Errorf("device %q: address %v and frame %v differ in their 2MiB offset", d.Name, d.VAddr, d.PAddr)
	}
	i := index(d.VAddr, levelBits(1))
	for _, o := range w.devices {
		if o.VAddr != d.VAddr && index(o.VAddr, levelBits(1)) == i && o.PAddr>>hostarch.HugePageShift != d.PAddr>>hostarch.HugePageShift {
			return fmt.Errorf("device %q: 2MiB slot of %v already maps %q", d.Name, d.VAddr, o.Name)
		}
	}
	return nil
}

func (w *KernelWindow) mapWindow() {
	t := w.tables
	attrs := w.windowAttrs()
	giant := levelBits(2)

	pa := w.PAddrBase
	for addr := PPTRBase; addr < PPTRTop; addr += hostarch.GiantPageSize {
		t.l1[index(addr, giant)].Store(EncodeLeaf(pa, attrs, HugePage))
		pa += hostarch.GiantPageSize
	}

	// Both aliases of the kernel's GiB share one table of 2MiB leaves.
	giB := hostarch.PAddr(bits.AlignDown64(uint64(w.KernelELFPAddrBase), hostarch.GiantPageSize))
	elf := encodeKernelTable(w.physical(&t.elf))
	t.l1[index(w.PaddrToPptr(giB), giant)].Store(elf)
	t.l1[index(w.KernelELFBase, giant)].Store(elf)
	for i := range t.elf {
		t.elf[i].Store(EncodeLeaf(giB+hostarch.PAddr(i)*hostarch.HugePageSize, attrs, LargePage))
	}

	t.l1[index(KDevBase, giant)].Store(encodeKernelTable(w.physical(&t.dev)))
}

func (w *KernelWindow) mapDevice(d platform.DeviceFrame) Slot {
	s := Slot{Table: &w.tables.dev, Index: index(d.VAddr, levelBits(1))}
	s.Store(EncodeLeaf(d.PAddr, w.deviceAttrs(d), LargePage))
	return s
}

// unmapDevice clears d's slot unless another device still shares it.
func (w *KernelWindow) unmapDevice(d platform.DeviceFrame) Slot {
	i := index(d.VAddr, levelBits(1))
	for _, o := range w.devices {
		if index(o.VAddr, levelBits(1)) == i {
			return Slot{}
		}
	}
	s := Slot{Table: &w.tables.dev, Index: i}
	s.Clear()
	return s
}

// CopyGlobalMappings copies the kernel half of the kernel root into a new
// user root, so the kernel stays mapped while the user root is active.
func (w *KernelWindow) CopyGlobalMappings(dst *PTEs) {
	for i := index(PPTRBase, levelBits(2)); i < entriesPerPage; i++ {
		dst[i].Store(w.tables.l1[i].Load())
	}
}

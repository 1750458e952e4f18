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

//go:build !riscv64 && !sv39

package pagetables

import (
	"fmt"

	"vspace.dev/vspace/pkg/bits"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/platform"
)

// kernelTables are the statically allocated kernel window tables.
//
// The PGD holds a single entry naming the PUD. PUD entries below PPTRTop name
// one PD each, filled with 2MiB blocks of the direct map. The last PD holds
// the kernel image alias and, in its last entry, the device PT.
type kernelTables struct {
	pgd  PTEs
	pud  PTEs
	pds  [entriesPerPage]PTEs
	pt   PTEs
	user PTEs
}

func (t *kernelTables) all() []*PTEs {
	all := []*PTEs{&t.pgd, &t.pud, &t.pt, &t.user}
	for i := range t.pds {
		all = append(all, &t.pds[i])
	}
	return all
}

func (t *kernelTables) root() *PTEs {
	return &t.pgd
}

// userRoot is the empty global user table installed in TTBR0 when no address
// space is active.
func (t *kernelTables) userRoot() *PTEs {
	return &t.user
}

func (w *KernelWindow) checkLayout() error {
	if w.KernelELFPAddrBase < w.PAddrBase || w.KernelELFPAddrTop > w.PAddrTop {
		return fmt.Errorf("kernel image [%v, %v) lies outside the direct mapped range [%v, %v)", w.KernelELFPAddrBase, w.KernelELFPAddrTop, w.PAddrBase, w.PAddrTop)
	}
	start := bits.AlignDown64(uint64(w.KernelELFPAddrBase), hostarch.HugePageSize)
	end := bits.AlignUp64(uint64(w.KernelELFPAddrTop), hostarch.HugePageSize)
	if blocks := (end - start) / hostarch.HugePageSize; blocks > entriesPerPage-1 {
		return fmt.Errorf("kernel image needs %d 2MiB blocks, at most %d fit", blocks, entriesPerPage-1)
	}
	return nil
}

func (w *KernelWindow) checkDevice(d platform.DeviceFrame) error {
	if d.VAddr < KDevBase || !d.VAddr.IsPageAligned() {
		return fmt.Errorf("device %q: address %v is not a page in the device window [%v, 2^64)", d.Name, d.VAddr, KDevBase)
	}
	return nil
}

func (w *KernelWindow) mapWindow() {
	t := w.tables
	attrs := w.windowAttrs()

	t.pgd[index(PPTRBase, levelBits(3))].Store(encodeKernelTable(w.physical(&t.pud)))

	top := index(PPTRTop, levelBits(2))
	for i := index(PPTRBase, levelBits(2)); i < top; i++ {
		t.pud[i].Store(encodeKernelTable(w.physical(&t.pds[i])))
	}

	addr := PPTRBase
	for pa := w.PAddrBase; pa < w.PAddrTop; pa += hostarch.HugePageSize {
		t.pds[index(addr, levelBits(2))][index(addr, levelBits(1))].Store(EncodeLeaf(pa, attrs, LargePage))
		addr += hostarch.HugePageSize
	}

	last := &t.pds[entriesPerPage-1]
	t.pud[top].Store(encodeKernelTable(w.physical(last)))
	addr = w.KernelELFBase.HugeRoundDown()
	for pa := hostarch.PAddr(bits.AlignDown64(uint64(w.KernelELFPAddrBase), hostarch.HugePageSize)); pa < w.KernelELFPAddrTop; pa += hostarch.HugePageSize {
		last[index(addr, levelBits(1))].Store(EncodeLeaf(pa, attrs, LargePage))
		addr += hostarch.HugePageSize
	}
	last[entriesPerPage-1].Store(encodeKernelTable(w.physical(&t.pt)))
}

func (w *KernelWindow) mapDevice(d platform.DeviceFrame) Slot {
	s := Slot{Table: &w.tables.pt, Index: index(d.VAddr, levelBits(0))}
	s.Store(EncodeLeaf(d.PAddr, w.deviceAttrs(d), SmallPage))
	return s
}

func (w *KernelWindow) unmapDevice(d platform.DeviceFrame) Slot {
	s := Slot{Table: &w.tables.pt, Index: index(d.VAddr, levelBits(0))}
	s.Clear()
	return s
}

// CopyGlobalMappings prepares a new user root. The kernel window lives in a
// separate translation register, so there is nothing to copy.
func (w *KernelWindow) CopyGlobalMappings(*PTEs) {}

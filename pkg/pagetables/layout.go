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

package pagetables

import (
	"fmt"

	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/platform"
)

// Layout is the placement of the kernel windows for one platform.
//
// The direct map aliases physical memory [PAddrBase, PAddrTop) at
// [PPTRBase, PPTRTop). The kernel image is aliased a second time at
// KernelELFBase, with its own offset. Both conversions are pure arithmetic.
type Layout struct {
	// PAddrBase and PAddrTop bound the directly mapped physical range.
	PAddrBase hostarch.PAddr
	PAddrTop  hostarch.PAddr

	// KernelELFPAddrBase and KernelELFPAddrTop bound the kernel image.
	KernelELFPAddrBase hostarch.PAddr
	KernelELFPAddrTop  hostarch.PAddr

	// KernelELFBase is the link address of the kernel image.
	KernelELFBase hostarch.VAddr

	// PageTableBase is the kernel image address of the static kernel
	// tables.
	PageTableBase hostarch.VAddr
}

// NewLayout computes the layout of p.
func NewLayout(p *platform.Platform) Layout {
	base := directMapPAddrBase(p)
	return Layout{
		PAddrBase:          base,
		PAddrTop:           base + hostarch.PAddr(PPTRTop-PPTRBase),
		KernelELFPAddrBase: p.KernelELFPAddr,
		KernelELFPAddrTop:  p.KernelELFPAddrTop(),
		KernelELFBase:      PPTRTop + hostarch.VAddr(uint64(p.KernelELFPAddr)&(kernelELFAlign-1)),
		PageTableBase:      PPTRTop + hostarch.VAddr(uint64(p.KernelELFPAddr)&(kernelELFAlign-1)+p.PageTableOffset),
	}
}

// PPTRBaseOffset is the direct map offset: virtual = physical + offset.
func (l *Layout) PPTRBaseOffset() uint64 {
	return uint64(PPTRBase) - uint64(l.PAddrBase)
}

// KernelELFBaseOffset is the kernel image offset: virtual = physical +
// offset.
func (l *Layout) KernelELFBaseOffset() uint64 {
	return uint64(l.KernelELFBase) - uint64(l.KernelELFPAddrBase)
}

// KernelELFTop is the end of the kernel image's link-time alias.
func (l *Layout) KernelELFTop() hostarch.VAddr {
	return l.KernelELFBase + hostarch.VAddr(l.KernelELFPAddrTop-l.KernelELFPAddrBase)
}

// InDirectMap returns true if v lies in the direct map.
func (l *Layout) InDirectMap(v hostarch.VAddr) bool {
	return v >= PPTRBase && v < PPTRTop
}

// InKernelELF returns true if v lies in the kernel image alias.
func (l *Layout) InKernelELF(v hostarch.VAddr) bool {
	return v >= l.KernelELFBase && v < l.KernelELFTop()
}

// PptrToPaddr converts a direct map address. It panics if v lies outside
// the direct map.
func (l *Layout) PptrToPaddr(v hostarch.VAddr) hostarch.PAddr {
	if !l.InDirectMap(v) {
		panic(fmt.Sprintf("%v is outside the direct map [%v, %v)", v, PPTRBase, PPTRTop))
	}
	return hostarch.PAddr(uint64(v) - l.PPTRBaseOffset())
}

// PaddrToPptr converts a physical address to its direct map alias. It panics
// if p lies outside the directly mapped range.
func (l *Layout) PaddrToPptr(p hostarch.PAddr) hostarch.VAddr {
	if p < l.PAddrBase || p >= l.PAddrTop {
		panic(fmt.Sprintf("%v is outside the direct mapped range [%v, %v)", p, l.PAddrBase, l.PAddrTop))
	}
	return hostarch.VAddr(uint64(p) + l.PPTRBaseOffset())
}

// KpptrToPaddr converts an address in the kernel image alias. It panics if v
// lies outside the kernel image.
func (l *Layout) KpptrToPaddr(v hostarch.VAddr) hostarch.PAddr {
	if !l.InKernelELF(v) {
		panic(fmt.Sprintf("%v is outside the kernel image [%v, %v)", v, l.KernelELFBase, l.KernelELFTop()))
	}
	return hostarch.PAddr(uint64(v) - l.KernelELFBaseOffset())
}

// index returns the table index of addr at the level that leaves bitsLeft
// bits unresolved.
func index(addr hostarch.VAddr, bitsLeft uint) int {
	return int(uint64(addr)>>bitsLeft) & (entriesPerPage - 1)
}

// levelBits returns the unresolved bits after a lookup at level, counting
// the last level as zero.
func levelBits(level int) uint {
	return hostarch.PageShift + entryBits*uint(level)
}

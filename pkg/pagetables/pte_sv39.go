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
)

// Arch names the selected page table format.
const Arch = "riscv64-sv39"

// Levels is the number of translation levels.
const Levels = 3

// Bits in page table entries.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7

	pteRWX = pteR | pteW | pteX

	ppnShift = 10
	ppnBits  = 44
)

// SATP layout.
const (
	satpModeSV39  = 8
	satpModeShift = 60
	satpASIDShift = 44
	satpASIDMask  = 0xffff
	satpPPNMask   = 0x0fff_ffff_ffff
)

// Valid returns true iff this entry is valid.
func (p PTE) Valid() bool {
	return p&pteV != 0
}

// IsTable returns true iff this entry names a next level table.
func (p PTE) IsTable() bool {
	return p&pteV != 0 && p&pteRWX == 0
}

// IsLeaf returns true iff this entry names a frame.
func (p PTE) IsLeaf() bool {
	return p&pteV != 0 && p&pteRWX != 0
}

// Address extracts the address. This should only be used if Valid returns
// true.
func (p PTE) Address() hostarch.PAddr {
	return hostarch.PAddr(bits.Field64(uint64(p), ppnShift, ppnBits) << hostarch.PageShift)
}

func ppn(physical hostarch.PAddr) PTE {
	return PTE(bits.Field64(uint64(physical), hostarch.PageShift, ppnBits) << ppnShift)
}

// EncodeTable returns a table entry for the table at physical.
func EncodeTable(physical hostarch.PAddr) PTE {
	return ppn(physical) | pteV
}

// encodeKernelTable returns a table entry for a kernel window table. All
// translations below it are global.
func encodeKernelTable(physical hostarch.PAddr) PTE {
	return EncodeTable(physical) | pteG
}

// EncodeLeaf returns a leaf entry for the frame at physical. Address bits
// below the size class are dropped. The format has no memory type or
// shareability field; those attributes are ignored.
func EncodeLeaf(physical hostarch.PAddr, attrs Attrs, size PageSize) PTE {
	pte := ppn(hostarch.PAddr(uint64(physical)&^(size.Bytes()-1))) | pteV | pteA | pteD | pteR
	switch attrs.Rights {
	case KernelOnly:
		pte |= pteW
	case ReadWrite:
		pte |= pteW | pteU
	case ReadOnly:
		pte |= pteU
	}
	if attrs.Executable {
		pte |= pteX
	}
	if attrs.Global {
		pte |= pteG
	}
	return pte
}

// Decode returns the logical content of an entry.
func Decode(p PTE) Decoded {
	switch {
	case p.IsTable():
		return Decoded{Kind: Table, Addr: p.Address()}
	case !p.IsLeaf():
		return Decoded{Kind: Invalid}
	}
	var rights Rights
	switch {
	case p&pteU != 0 && p&pteW != 0:
		rights = ReadWrite
	case p&pteU != 0:
		rights = ReadOnly
	case p&pteW != 0:
		rights = KernelOnly
	default:
		rights = KernelReadOnly
	}
	return Decoded{
		Kind: Leaf,
		Addr: p.Address(),
		Attrs: Attrs{
			Rights:     rights,
			Executable: p&pteX != 0,
			MemoryType: hostarch.MemoryTypeWriteBack,
			Global:     p&pteG != 0,
		},
	}
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	d := Decode(p)
	switch d.Kind {
	case Table:
		return fmt.Sprintf("table(%v)", d.Addr)
	case Leaf:
		return fmt.Sprintf("leaf(%v %v x=%t g=%t)", d.Addr, d.Attrs.Rights, d.Attrs.Executable, d.Attrs.Global)
	default:
		return fmt.Sprintf("invalid(%#x)", uint64(p))
	}
}

// RootRegister returns the SATP value selecting the table at root for asid.
func RootRegister(asid uint16, root hostarch.PAddr) uint64 {
	return satpModeSV39<<satpModeShift |
		uint64(asid&satpASIDMask)<<satpASIDShift |
		(uint64(root)>>hostarch.PageShift)&satpPPNMask
}

// SplitRootRegister is the inverse of RootRegister.
func SplitRootRegister(reg uint64) (asid uint16, root hostarch.PAddr) {
	return uint16(reg >> satpASIDShift), hostarch.PAddr((reg & satpPPNMask) << hostarch.PageShift)
}

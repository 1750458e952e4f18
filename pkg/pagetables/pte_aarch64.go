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

	"vspace.dev/vspace/pkg/hostarch"
)

// Arch names the selected page table format.
const Arch = "aarch64"

// Levels is the number of translation levels.
const Levels = 4

// Descriptor bits.
const (
	typeMask  = 0x3
	typeBlock = 0x1
	typeTable = 0x3

	// pageBit is a software bit distinguishing a 4K page descriptor from a
	// table descriptor, which share the same hardware type.
	pageBit = 1 << 58

	attrIndxShift = 2
	attrIndxMask  = 0x7 << attrIndxShift
	apShift       = 6
	apMask        = 0x3 << apShift
	shShift       = 8
	shMask        = 0x3 << shShift
	innerShare    = 0x3 << shShift
	accessFlag    = 1 << 10
	notGlobal     = 1 << 11
	pxn           = 1 << 53
	uxn           = 1 << 54

	addrMask = 0x0000_ffff_ffff_f000
)

// Memory attribute indirection indices. The MAIR register programmed at boot
// holds the matching attribute in each slot.
const (
	mairDeviceNGnRnE = 0
	mairDeviceNGnRE  = 1
	mairDeviceGRE    = 2
	mairNormalNC     = 3
	mairNormal       = 4
	mairNormalWT     = 5
)

// MAIR is the memory attribute indirection register value matching the
// indices used by EncodeLeaf.
const MAIR uint64 = 0x00<<(8*mairDeviceNGnRnE) |
	0x04<<(8*mairDeviceNGnRE) |
	0x0c<<(8*mairDeviceGRE) |
	0x44<<(8*mairNormalNC) |
	0xff<<(8*mairNormal) |
	0xaa<<(8*mairNormalWT)

// TTBR layout.
const (
	ttbrASIDOffset = 48
	ttbrASIDMask   = 0xffff
	ttbrAddrMask   = 0x0000_ffff_ffff_ffff
)

// Valid returns true iff this entry is valid.
func (p PTE) Valid() bool {
	return p&typeBlock != 0
}

// IsTable returns true iff this entry names a next level table.
func (p PTE) IsTable() bool {
	return p&(typeMask|pageBit) == typeTable
}

// IsLeaf returns true iff this entry names a frame.
func (p PTE) IsLeaf() bool {
	switch p & typeMask {
	case typeBlock:
		return true
	case typeTable:
		return p&pageBit != 0
	default:
		return false
	}
}

// Address extracts the address. This should only be used if Valid returns
// true.
func (p PTE) Address() hostarch.PAddr {
	return hostarch.PAddr(p & addrMask)
}

// EncodeTable returns a table entry for the table at physical.
func EncodeTable(physical hostarch.PAddr) PTE {
	return PTE(uint64(physical)&addrMask) | typeTable
}

// encodeKernelTable returns a table entry for a kernel window table.
func encodeKernelTable(physical hostarch.PAddr) PTE {
	return EncodeTable(physical)
}

// EncodeLeaf returns a leaf entry for the frame at physical. Address bits
// below the size class are dropped.
func EncodeLeaf(physical hostarch.PAddr, attrs Attrs, size PageSize) PTE {
	pte := PTE(uint64(physical)&addrMask&^(size.Bytes()-1)) | accessFlag
	if size == SmallPage {
		pte |= typeTable | pageBit
	} else {
		pte |= typeBlock
	}
	pte |= PTE(mairIndex(attrs.MemoryType)) << attrIndxShift
	pte |= PTE(attrs.Rights&0x3) << apShift
	if attrs.Shareable {
		pte |= innerShare
	}
	if !attrs.Global {
		pte |= notGlobal
	}
	// Kernel leaves are never user executable; user leaves are never
	// kernel executable.
	if attrs.Rights.UserAccessible() {
		pte |= pxn
		if !attrs.Executable {
			pte |= uxn
		}
	} else {
		pte |= uxn
		if !attrs.Executable {
			pte |= pxn
		}
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
	rights := Rights((p & apMask) >> apShift)
	attrs := Attrs{
		Rights:     rights,
		MemoryType: memoryType(int((p & attrIndxMask) >> attrIndxShift)),
		Shareable:  p&shMask == innerShare,
		Global:     p&notGlobal == 0,
	}
	if rights.UserAccessible() {
		attrs.Executable = p&uxn == 0
	} else {
		attrs.Executable = p&pxn == 0
	}
	return Decoded{
		Kind:  Leaf,
		Addr:  p.Address(),
		Attrs: attrs,
		Block: p&typeMask == typeBlock,
	}
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	d := Decode(p)
	switch d.Kind {
	case Table:
		return fmt.Sprintf("table(%v)", d.Addr)
	case Leaf:
		return fmt.Sprintf("leaf(%v %v x=%t %v sh=%t g=%t block=%t)", d.Addr, d.Attrs.Rights, d.Attrs.Executable, d.Attrs.MemoryType.ShortString(), d.Attrs.Shareable, d.Attrs.Global, d.Block)
	default:
		return fmt.Sprintf("invalid(%#x)", uint64(p))
	}
}

func mairIndex(mt hostarch.MemoryType) int {
	switch mt {
	case hostarch.MemoryTypeWriteBack:
		return mairNormal
	case hostarch.MemoryTypeWriteCombine:
		return mairNormalNC
	case hostarch.MemoryTypeUncached:
		return mairDeviceNGnRnE
	default:
		panic(fmt.Sprintf("unsupported memory type %v", mt))
	}
}

func memoryType(index int) hostarch.MemoryType {
	switch index {
	case mairNormal, mairNormalWT:
		return hostarch.MemoryTypeWriteBack
	case mairNormalNC:
		return hostarch.MemoryTypeWriteCombine
	default:
		return hostarch.MemoryTypeUncached
	}
}

// RootRegister returns the TTBR value selecting the table at root for asid.
func RootRegister(asid uint16, root hostarch.PAddr) uint64 {
	return uint64(asid&ttbrASIDMask)<<ttbrASIDOffset | uint64(root)&ttbrAddrMask
}

// SplitRootRegister is the inverse of RootRegister.
func SplitRootRegister(reg uint64) (asid uint16, root hostarch.PAddr) {
	return uint16(reg >> ttbrASIDOffset), hostarch.PAddr(reg & ttbrAddrMask)
}

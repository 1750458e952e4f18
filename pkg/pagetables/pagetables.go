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

// Package pagetables encodes, walks and edits hardware page tables.
//
// Two formats are supported and selected at build time: the aarch64 4-level
// descriptor format (the default) and the rv64 SV39 3-level format (GOARCH
// riscv64, or any architecture with the sv39 build tag). Both formats export
// the same identifiers, so the rest of this package and its callers are
// written once.
//
// Page tables are addressed physically. Tables are resolved through an
// Allocator, which maps a physical address to the table stored there.
package pagetables

import (
	"fmt"

	"vspace.dev/vspace/pkg/hostarch"
)

const (
	// entryBits is the number of address bits consumed per level.
	entryBits = 9

	// entriesPerPage is the number of PTEs per table.
	entriesPerPage = 1 << entryBits

	// pteSize is the size of one PTE in bytes.
	pteSize = 8
)

// PTEs is a collection of entries: one page table.
type PTEs [entriesPerPage]PTE

// Allocator is used to allocate and resolve page tables.
//
// Note that allocators may be called concurrently.
type Allocator interface {
	// NewPTEs returns a new zeroed table, or nil if none is available.
	NewPTEs() *PTEs

	// PhysicalFor gives the physical address for a set of PTEs.
	PhysicalFor(ptes *PTEs) hostarch.PAddr

	// LookupPTEs looks up PTEs by physical address. It returns nil if no
	// table is stored at physical.
	LookupPTEs(physical hostarch.PAddr) *PTEs

	// FreePTEs marks a set of PTEs a freed.
	FreePTEs(ptes *PTEs)
}

// StaticAllocator is an Allocator that also resolves tables placed at fixed
// physical addresses, such as the kernel window tables linked into the
// kernel image.
type StaticAllocator interface {
	Allocator

	// Adopt records that ptes lives at physical.
	Adopt(physical hostarch.PAddr, ptes *PTEs)
}

// PageSize is a leaf size class.
type PageSize uint8

const (
	// SmallPage is a 4KiB leaf at the last level.
	SmallPage PageSize = iota

	// LargePage is a 2MiB leaf one level up.
	LargePage

	// HugePage is a 1GiB leaf two levels up.
	HugePage
)

// Bits returns the binary log of the size. An unknown size class is a
// programming error and panics.
func (s PageSize) Bits() uint {
	switch s {
	case SmallPage:
		return hostarch.PageShift
	case LargePage:
		return hostarch.HugePageShift
	case HugePage:
		return hostarch.GiantPageShift
	default:
		panic(fmt.Sprintf("unsupported page size class %d", s))
	}
}

// Bytes returns the size in bytes.
func (s PageSize) Bytes() uint64 {
	return 1 << s.Bits()
}

// String implements fmt.Stringer.String.
func (s PageSize) String() string {
	switch s {
	case SmallPage:
		return "4K"
	case LargePage:
		return "2M"
	case HugePage:
		return "1G"
	default:
		return fmt.Sprintf("PageSize(%d)", s)
	}
}

// PageSizeForBits returns the size class whose leaves leave bits address bits
// unresolved.
func PageSizeForBits(bits uint) (PageSize, bool) {
	switch bits {
	case hostarch.PageShift:
		return SmallPage, true
	case hostarch.HugePageShift:
		return LargePage, true
	case hostarch.GiantPageShift:
		return HugePage, true
	}
	return 0, false
}

// CheckVPAlignment returns true if addr is aligned to the size class.
func CheckVPAlignment(size PageSize, addr hostarch.VAddr) bool {
	return uint64(addr)&(size.Bytes()-1) == 0
}

// Rights are the access rights of a leaf.
type Rights uint8

const (
	// KernelOnly leaves are readable and writable by the kernel only.
	KernelOnly Rights = iota

	// ReadWrite leaves are readable and writable at every privilege.
	ReadWrite

	// KernelReadOnly leaves are readable by the kernel only.
	KernelReadOnly

	// ReadOnly leaves are readable at every privilege.
	ReadOnly
)

// UserAccessible returns true if user mode may access the leaf.
func (r Rights) UserAccessible() bool {
	return r == ReadWrite || r == ReadOnly
}

// Writable returns true if the leaf may be written at its privilege.
func (r Rights) Writable() bool {
	return r == ReadWrite || r == KernelOnly
}

// String implements fmt.Stringer.String.
func (r Rights) String() string {
	switch r {
	case KernelOnly:
		return "KernelOnly"
	case ReadWrite:
		return "ReadWrite"
	case KernelReadOnly:
		return "KernelReadOnly"
	case ReadOnly:
		return "ReadOnly"
	default:
		return fmt.Sprintf("Rights(%d)", r)
	}
}

// Attrs are the attributes of a leaf.
type Attrs struct {
	// Rights are the access rights.
	Rights Rights

	// Executable allows instruction fetch at the leaf's privilege.
	Executable bool

	// MemoryType is the cacheability class.
	MemoryType hostarch.MemoryType

	// Shareable places the leaf in the inner shareable domain.
	Shareable bool

	// Global leaves match every ASID.
	Global bool
}

// Kind is the projection of an entry.
type Kind uint8

const (
	// Invalid entries carry no mapping.
	Invalid Kind = iota

	// Table entries name the next level table.
	Table

	// Leaf entries name a frame.
	Leaf
)

// String implements fmt.Stringer.String.
func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Table:
		return "table"
	case Leaf:
		return "leaf"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Decoded is the logical content of one entry.
type Decoded struct {
	Kind Kind

	// Addr is the frame or next table address. It is zero for invalid
	// entries.
	Addr hostarch.PAddr

	// Attrs is set for leaves only.
	Attrs Attrs

	// Block is set for leaves whose format marks them as larger than a
	// base page. The size itself follows from the level the leaf was found
	// at (see LookupSlot).
	Block bool
}

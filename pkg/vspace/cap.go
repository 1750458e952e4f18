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

package vspace

import (
	"fmt"

	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
)

// CapType is the kind of a capability.
type CapType uint8

const (
	// CapNull is the empty capability.
	CapNull CapType = iota

	// CapRoot names a translation root.
	CapRoot

	// CapTable names an intermediate table.
	CapTable

	// CapFrame names a frame.
	CapFrame

	// CapPool names an ASID pool.
	CapPool
)

// String implements fmt.Stringer.String.
func (t CapType) String() string {
	switch t {
	case CapNull:
		return "null"
	case CapRoot:
		return "root"
	case CapTable:
		return "table"
	case CapFrame:
		return "frame"
	case CapPool:
		return "pool"
	default:
		return fmt.Sprintf("CapType(%d)", t)
	}
}

// Cap is the view of a capability this package consumes. Authority checks
// and lifetime are the caller's business.
type Cap interface {
	Type() CapType
}

// NullCap is the empty capability.
type NullCap struct{}

// Type implements Cap.Type.
func (NullCap) Type() CapType { return CapNull }

// RootCap names a translation root.
type RootCap struct {
	// Base is the physical address of the root table.
	Base hostarch.PAddr

	// ASID is the ASID the root is bound to, if Mapped.
	ASID asid.ASID

	// Mapped is set once the root is bound to ASID.
	Mapped bool
}

// Type implements Cap.Type.
func (RootCap) Type() CapType { return CapRoot }

// TableCap names an intermediate table.
type TableCap struct {
	// Base is the physical address of the table.
	Base hostarch.PAddr

	// MappedAddr is an address the table translates, if Mapped.
	MappedAddr hostarch.VAddr

	// ASID is the address space the table is linked into, if Mapped.
	ASID asid.ASID

	Mapped bool
}

// Type implements Cap.Type.
func (TableCap) Type() CapType { return CapTable }

// FrameCap names a frame.
type FrameCap struct {
	// Base is the physical address of the frame.
	Base hostarch.PAddr

	// Size is the frame's size class.
	Size pagetables.PageSize

	// Rights bounds the rights of mappings of the frame.
	Rights pagetables.Rights

	// Device frames are mapped uncached.
	Device bool

	// MappedAddr is the address the frame is mapped at, if Mapped.
	MappedAddr hostarch.VAddr

	// ASID is the address space the frame is mapped into, if Mapped.
	ASID asid.ASID

	Mapped bool
}

// Type implements Cap.Type.
func (FrameCap) Type() CapType { return CapFrame }

// Contains returns true if [offset, offset+length) lies inside the frame.
func (f FrameCap) Contains(offset, length uint64) bool {
	size := f.Size.Bytes()
	return length != 0 && offset < size && length <= size-offset
}

// PoolCap names an ASID pool.
type PoolCap struct {
	// Base is the first ASID of the pool.
	Base asid.ASID

	Pool *asid.Pool
}

// Type implements Cap.Type.
func (PoolCap) Type() CapType { return CapPool }

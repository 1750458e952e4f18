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
	"sync/atomic"

	"vspace.dev/vspace/pkg/hostarch"
)

// PTE is a page table entry.
//
// Entries shared with the hardware and other processors are only accessed
// through Load and Store, which are single 64-bit atomic operations.
type PTE uint64

// Load atomically reads the entry.
//
//go:nosplit
func (p *PTE) Load() PTE {
	return PTE(atomic.LoadUint64((*uint64)(p)))
}

// Store atomically writes the entry.
//
//go:nosplit
func (p *PTE) Store(v PTE) {
	atomic.StoreUint64((*uint64)(p), uint64(v))
}

// Clear atomically invalidates the entry.
//
//go:nosplit
func (p *PTE) Clear() {
	p.Store(0)
}

// Slot is a reference to one entry of a table.
type Slot struct {
	Table *PTEs
	Index int
}

// Entry returns the referenced entry. It panics if the slot is out of bounds.
func (s Slot) Entry() *PTE {
	return &s.Table[s.Index]
}

// Load atomically reads the referenced entry.
func (s Slot) Load() PTE {
	return s.Entry().Load()
}

// Store atomically writes the referenced entry.
func (s Slot) Store(v PTE) {
	s.Entry().Store(v)
}

// Clear atomically invalidates the referenced entry.
func (s Slot) Clear() {
	s.Entry().Clear()
}

// Physical returns the physical address of the referenced entry.
func (s Slot) Physical(a Allocator) hostarch.PAddr {
	return a.PhysicalFor(s.Table) + hostarch.PAddr(s.Index*pteSize)
}

// IsZero returns true for the zero Slot.
func (s Slot) IsZero() bool {
	return s.Table == nil
}

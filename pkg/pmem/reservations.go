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

// Package pmem tracks physical memory: reserved ranges, and the arena from
// which page tables are allocated.
package pmem

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"vspace.dev/vspace/pkg/hostarch"
)

// Region is a physical range [Start, End).
type Region struct {
	Start hostarch.PAddr
	End   hostarch.PAddr
}

// String implements fmt.Stringer.String.
func (r Region) String() string {
	return fmt.Sprintf("[%v, %v)", r.Start, r.End)
}

// Length returns the size of r in bytes.
func (r Region) Length() uint64 {
	return uint64(r.End - r.Start)
}

// Contains returns true if p lies in r.
func (r Region) Contains(p hostarch.PAddr) bool {
	return p >= r.Start && p < r.End
}

// Reservations is a set of disjoint reserved physical ranges. Reserved
// ranges are withheld from the allocator.
//
// Reservations is safe for concurrent use.
type Reservations struct {
	mu   sync.Mutex
	tree *btree.BTreeG[Region]
}

// NewReservations returns an empty set.
func NewReservations() *Reservations {
	return &Reservations{
		tree: btree.NewG(2, func(a, b Region) bool { return a.Start < b.Start }),
	}
}

// overlapping returns the reserved region overlapping r, if any.
//
// Precondition: r.mu must be locked.
func (r *Reservations) overlapping(want Region) (Region, bool) {
	var (
		found Region
		ok    bool
	)
	// Regions are disjoint, so only the last region starting before
	// want.End can overlap it.
	r.tree.DescendLessOrEqual(Region{Start: want.End - 1}, func(got Region) bool {
		found, ok = got, got.End > want.Start
		return false
	})
	return found, ok
}

// Reserve reserves [start, end). It returns false if the range is empty or
// overlaps an existing reservation.
func (r *Reservations) Reserve(start, end hostarch.PAddr) bool {
	if end <= start {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overlapping(Region{start, end}); ok {
		return false
	}
	r.tree.ReplaceOrInsert(Region{start, end})
	return true
}

// Release drops the reservation starting at start. It returns false if
// there is none.
func (r *Reservations) Release(start hostarch.PAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tree.Delete(Region{Start: start})
	return ok
}

// Reserved returns true if p lies in a reserved range.
func (r *Reservations) Reserved(p hostarch.PAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.overlapping(Region{p, p + 1})
	return ok
}

// Regions returns the reserved ranges in address order.
func (r *Reservations) Regions() []Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	regions := make([]Region, 0, r.tree.Len())
	r.tree.Ascend(func(reg Region) bool {
		regions = append(regions, reg)
		return true
	})
	return regions
}

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

// Package asid implements the address space identifier directory.
//
// An ASID is split into a high part, indexing the directory, and a low part,
// indexing a pool of translation roots. The directory and the pools are
// shared between processors without locking: every update is a single
// atomic operation, and removals compare against the expected value so that
// a stale removal cannot clobber a newer binding.
package asid

import (
	"errors"
	"fmt"
	"sync/atomic"

	"vspace.dev/vspace/pkg/atomicbitops"
	"vspace.dev/vspace/pkg/hostarch"
)

// ASID is an address space identifier.
type ASID uint16

const (
	// HighBits is the number of ASID bits indexing the directory.
	HighBits = 7

	// LowBits is the number of ASID bits indexing a pool.
	LowBits = 9

	// PoolSize is the number of slots per pool.
	PoolSize = 1 << LowBits

	// NumPools is the number of directory entries.
	NumPools = 1 << HighBits

	// Invalid is never bound. It tags kernel translations.
	Invalid ASID = 0

	// InitialTask is the ASID of the first user address space.
	InitialTask ASID = 1

	// Max is the largest ASID.
	Max ASID = NumPools*PoolSize - 1
)

// High returns the directory index of a.
func (a ASID) High() int {
	return int(a >> LowBits)
}

// Low returns the pool slot of a.
func (a ASID) Low() int {
	return int(a & (PoolSize - 1))
}

// Valid returns true if a may be bound.
func (a ASID) Valid() bool {
	return a != Invalid && a <= Max
}

// String implements fmt.Stringer.String.
func (a ASID) String() string {
	return fmt.Sprintf("asid %d", uint16(a))
}

// Base returns the first ASID of the pool at index.
func Base(index int) ASID {
	return ASID(index << LowBits)
}

var (
	// ErrNotFound is returned when an ASID has no bound root, whether
	// because its pool or its slot is empty.
	ErrNotFound = errors.New("no address space bound")

	// ErrNoPool is returned when binding an ASID whose pool is not
	// installed.
	ErrNoPool = errors.New("no ASID pool installed")

	// ErrPoolExists is returned when installing over an installed pool.
	ErrPoolExists = errors.New("ASID pool already installed")

	// ErrInvalid is returned for an unusable ASID or root.
	ErrInvalid = errors.New("invalid ASID binding")
)

// Pool holds the translation roots of PoolSize consecutive ASIDs. An empty
// slot holds 0, which is never the address of a root.
type Pool struct {
	slots [PoolSize]atomicbitops.Uint64
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return new(Pool)
}

// Load returns the root in slot low, or 0.
func (p *Pool) Load(low int) hostarch.PAddr {
	return hostarch.PAddr(p.slots[low].Load())
}

// FindFree returns the first empty slot of the pool whose first ASID is
// base. The invalid ASID is never returned.
func (p *Pool) FindFree(base ASID) (ASID, bool) {
	for i := range p.slots {
		a := base + ASID(i)
		if a == Invalid {
			continue
		}
		if p.slots[i].Load() == 0 {
			return a, true
		}
	}
	return Invalid, false
}

// Directory maps ASIDs to translation roots.
//
// The zero value is an empty directory.
type Directory struct {
	pools [NumPools]atomic.Pointer[Pool]
}

func checkIndex(index int) {
	if index < 0 || index >= NumPools {
		panic(fmt.Sprintf("ASID pool index %d out of range", index))
	}
}

// InstallPool installs p at index. It fails with ErrPoolExists if a pool is
// already installed there.
func (d *Directory) InstallPool(index int, p *Pool) error {
	checkIndex(index)
	if p == nil {
		return ErrInvalid
	}
	if !d.pools[index].CompareAndSwap(nil, p) {
		return ErrPoolExists
	}
	return nil
}

// RemovePool removes the pool at index if it is expected. It returns false,
// changing nothing, otherwise.
func (d *Directory) RemovePool(index int, expected *Pool) bool {
	checkIndex(index)
	return expected != nil && d.pools[index].CompareAndSwap(expected, nil)
}

// Pool returns the pool at index, or nil.
func (d *Directory) Pool(index int) *Pool {
	checkIndex(index)
	return d.pools[index].Load()
}

// FindFreePool returns the first index without a pool.
func (d *Directory) FindFreePool() (int, bool) {
	for i := range d.pools {
		if d.pools[i].Load() == nil {
			return i, true
		}
	}
	return 0, false
}

// Bind binds a to root, replacing any previous binding.
func (d *Directory) Bind(a ASID, root hostarch.PAddr) error {
	if !a.Valid() || root == 0 {
		return ErrInvalid
	}
	p := d.pools[a.High()].Load()
	if p == nil {
		return ErrNoPool
	}
	p.slots[a.Low()].Store(uint64(root))
	return nil
}

// Lookup returns the root bound to a.
func (d *Directory) Lookup(a ASID) (hostarch.PAddr, error) {
	if a > Max {
		return 0, ErrNotFound
	}
	p := d.pools[a.High()].Load()
	if p == nil {
		return 0, ErrNotFound
	}
	root := p.Load(a.Low())
	if root == 0 {
		return 0, ErrNotFound
	}
	return root, nil
}

// Unbind clears a's binding if it is expected. It returns false, changing
// nothing, otherwise.
func (d *Directory) Unbind(a ASID, expected hostarch.PAddr) bool {
	if a > Max || expected == 0 {
		return false
	}
	p := d.pools[a.High()].Load()
	if p == nil {
		return false
	}
	return p.slots[a.Low()].CompareAndSwap(uint64(expected), 0)
}

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

package pmem

import (
	"fmt"
	"sync"

	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
)

// Arena allocates page tables from a physical range.
//
// Tables handed out by NewPTEs take the next free frame of the range. Tables
// placed elsewhere, such as the kernel window tables, are registered with
// Adopt and are never freed.
//
// Freed frames are not reused until Recycle is called, since another
// processor may still be walking a table that was just unlinked.
type Arena struct {
	region Region

	mu sync.Mutex

	// next is the first frame never handed out.
	next hostarch.PAddr

	// pool holds recycled frames.
	pool []hostarch.PAddr

	// freed holds frames released since the last Recycle.
	freed []hostarch.PAddr

	byPhys map[hostarch.PAddr]*pagetables.PTEs
	byPTEs map[*pagetables.PTEs]hostarch.PAddr
	static map[*pagetables.PTEs]struct{}
}

// NewArena returns an arena allocating from [start, end). The range is
// reserved in res.
func NewArena(start, end hostarch.PAddr, res *Reservations) (*Arena, error) {
	if !start.IsPageAligned() || !end.IsPageAligned() || end <= start {
		return nil, fmt.Errorf("invalid arena range [%v, %v)", start, end)
	}
	if !res.Reserve(start, end) {
		return nil, fmt.Errorf("arena range [%v, %v) overlaps a reservation", start, end)
	}
	return &Arena{
		region: Region{start, end},
		next:   start,
		byPhys: make(map[hostarch.PAddr]*pagetables.PTEs),
		byPTEs: make(map[*pagetables.PTEs]hostarch.PAddr),
		static: make(map[*pagetables.PTEs]struct{}),
	}, nil
}

// Region returns the range the arena allocates from.
func (a *Arena) Region() Region {
	return a.region
}

// NewPTEs implements pagetables.Allocator.NewPTEs. It returns nil when the
// arena is exhausted.
func (a *Arena) NewPTEs() *pagetables.PTEs {
	a.mu.Lock()
	defer a.mu.Unlock()

	var physical hostarch.PAddr
	if n := len(a.pool); n > 0 {
		physical = a.pool[n-1]
		a.pool = a.pool[:n-1]
	} else {
		if a.next >= a.region.End {
			return nil
		}
		physical = a.next
		a.next += hostarch.PageSize
	}

	ptes := new(pagetables.PTEs)
	a.byPhys[physical] = ptes
	a.byPTEs[ptes] = physical
	return ptes
}

// PhysicalFor implements pagetables.Allocator.PhysicalFor. It panics if ptes
// was not allocated or adopted by a.
func (a *Arena) PhysicalFor(ptes *pagetables.PTEs) hostarch.PAddr {
	a.mu.Lock()
	defer a.mu.Unlock()
	physical, ok := a.byPTEs[ptes]
	if !ok {
		panic(fmt.Sprintf("table %p is not owned by the arena", ptes))
	}
	return physical
}

// LookupPTEs implements pagetables.Allocator.LookupPTEs.
func (a *Arena) LookupPTEs(physical hostarch.PAddr) *pagetables.PTEs {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byPhys[physical]
}

// FreePTEs implements pagetables.Allocator.FreePTEs.
func (a *Arena) FreePTEs(ptes *pagetables.PTEs) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.static[ptes]; ok {
		panic(fmt.Sprintf("freeing static table %p", ptes))
	}
	physical, ok := a.byPTEs[ptes]
	if !ok {
		panic(fmt.Sprintf("freeing table %p not owned by the arena", ptes))
	}
	delete(a.byPTEs, ptes)
	delete(a.byPhys, physical)
	a.freed = append(a.freed, physical)
}

// Adopt implements pagetables.StaticAllocator.Adopt.
func (a *Arena) Adopt(physical hostarch.PAddr, ptes *pagetables.PTEs) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if other, ok := a.byPhys[physical]; ok && other != ptes {
		panic(fmt.Sprintf("two tables adopted at %v", physical))
	}
	a.byPhys[physical] = ptes
	a.byPTEs[ptes] = physical
	a.static[ptes] = struct{}{}
}

// Recycle makes freed frames available again.
//
// Precondition: no processor may still be walking a freed table, i.e. the
// TLB has been invalidated since the last FreePTEs.
func (a *Arena) Recycle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pool = append(a.pool, a.freed...)
	a.freed = a.freed[:0]
}

// Stats returns the number of tables in use and the number of frames still
// available (never used or recycled).
func (a *Arena) Stats() (used, available int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	used = len(a.byPTEs) - len(a.static)
	available = len(a.pool) + int((a.region.End-a.next)/hostarch.PageSize)
	return used, available
}

var _ pagetables.StaticAllocator = (*Arena)(nil)

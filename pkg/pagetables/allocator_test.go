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
)

// testAllocator hands out tables at fake physical addresses above any RAM
// used by the tests.
type testAllocator struct {
	next   hostarch.PAddr
	byPhys map[hostarch.PAddr]*PTEs
	byPTEs map[*PTEs]hostarch.PAddr
}

func newTestAllocator() *testAllocator {
	return &testAllocator{
		next:   0x10_0000_0000,
		byPhys: make(map[hostarch.PAddr]*PTEs),
		byPTEs: make(map[*PTEs]hostarch.PAddr),
	}
}

func (a *testAllocator) NewPTEs() *PTEs {
	ptes := new(PTEs)
	a.Adopt(a.next, ptes)
	a.next += hostarch.PageSize
	return ptes
}

func (a *testAllocator) PhysicalFor(ptes *PTEs) hostarch.PAddr {
	p, ok := a.byPTEs[ptes]
	if !ok {
		panic(fmt.Sprintf("unknown table %p", ptes))
	}
	return p
}

func (a *testAllocator) LookupPTEs(physical hostarch.PAddr) *PTEs {
	return a.byPhys[physical]
}

func (a *testAllocator) FreePTEs(ptes *PTEs) {
	delete(a.byPhys, a.byPTEs[ptes])
	delete(a.byPTEs, ptes)
}

func (a *testAllocator) Adopt(physical hostarch.PAddr, ptes *PTEs) {
	a.byPhys[physical] = ptes
	a.byPTEs[ptes] = physical
}

// testReserver records reservations.
type testReserver struct {
	reserved map[hostarch.PAddr]hostarch.PAddr
}

func newTestReserver() *testReserver {
	return &testReserver{reserved: make(map[hostarch.PAddr]hostarch.PAddr)}
}

func (r *testReserver) Reserve(start, end hostarch.PAddr) bool {
	if _, ok := r.reserved[start]; ok {
		return false
	}
	r.reserved[start] = end
	return true
}

func (r *testReserver) Release(start hostarch.PAddr) bool {
	if _, ok := r.reserved[start]; !ok {
		return false
	}
	delete(r.reserved, start)
	return true
}

// mapAt installs pte for addr at the level of size, creating tables on the
// way.
func mapAt(a *testAllocator, root *PTEs, addr hostarch.VAddr, pte PTE, size PageSize) {
	pt := root
	for level := Levels - 1; ; level-- {
		bitsLeft := levelBits(level)
		e := &pt[index(addr, bitsLeft)]
		if bitsLeft == size.Bits() {
			e.Store(pte)
			return
		}
		if !e.Load().IsTable() {
			next := a.NewPTEs()
			e.Store(EncodeTable(a.PhysicalFor(next)))
		}
		pt = a.LookupPTEs(e.Load().Address())
	}
}

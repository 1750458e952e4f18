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

// LookupSlot walks the tables below root towards addr.
//
// It descends through table entries and stops at the first invalid or leaf
// entry, or at the last level. It returns that entry's slot together with the
// number of low address bits the walk did not resolve: 12 for an entry of the
// last level, 21 one level up, and so on. No tables are allocated.
func LookupSlot(a Allocator, root *PTEs, addr hostarch.VAddr) (Slot, uint) {
	pt := root
	for level := Levels - 1; ; level-- {
		bitsLeft := levelBits(level)
		s := Slot{Table: pt, Index: index(addr, bitsLeft)}
		e := s.Load()
		if level == 0 || !e.IsTable() {
			return s, bitsLeft
		}
		next := a.LookupPTEs(e.Address())
		if next == nil {
			panic(fmt.Sprintf("table entry %v at level %d for %v names no table", e, level, addr))
		}
		pt = next
	}
}

// Translate resolves addr below root. ok is false if the walk ended at an
// entry that is not a leaf.
func Translate(a Allocator, root *PTEs, addr hostarch.VAddr) (physical hostarch.PAddr, d Decoded, bitsLeft uint, ok bool) {
	s, bitsLeft := LookupSlot(a, root, addr)
	d = Decode(s.Load())
	if d.Kind != Leaf {
		return 0, d, bitsLeft, false
	}
	offset := uint64(addr) & ((1 << bitsLeft) - 1)
	return d.Addr + hostarch.PAddr(offset), d, bitsLeft, true
}

// Visitor is called for every valid leaf in a range. addr is the first
// address the leaf maps. Returning false stops the walk.
type Visitor func(addr hostarch.VAddr, bitsLeft uint, pte PTE) bool

// Walk visits the leaves below root covering [start, last], in address
// order. last is inclusive, so the range may end at the top of the address
// space. The top level index wraps, so upper half ranges are walked like
// lower half ones.
func Walk(a Allocator, root *PTEs, start, last hostarch.VAddr, visit Visitor) {
	if start > last {
		return
	}
	walk(a, root, Levels-1, start, last, visit)
}

func walk(a Allocator, pt *PTEs, level int, start, last hostarch.VAddr, visit Visitor) bool {
	bitsLeft := levelBits(level)
	size := hostarch.VAddr(1) << bitsLeft
	for addr := start; ; {
		// entryLast is the last address of the range this entry covers.
		entryLast := addr | (size - 1)
		if entryLast > last {
			entryLast = last
		}
		e := pt[index(addr, bitsLeft)].Load()
		switch {
		case e.IsTable() && level > 0:
			child := a.LookupPTEs(e.Address())
			if child == nil {
				panic(fmt.Sprintf("table entry %v for %v names no table", e, addr))
			}
			if !walk(a, child, level-1, addr, entryLast, visit) {
				return false
			}
		case e.IsLeaf():
			if !visit(addr&^(size-1), bitsLeft, e) {
				return false
			}
		}
		if entryLast == last {
			return true
		}
		addr = entryLast + 1
	}
}

// FindTable walks towards addr looking for the entry that links the table
// at table. It returns false if the walk reaches an entry that is not a
// table before finding it.
func FindTable(a Allocator, root *PTEs, addr hostarch.VAddr, table hostarch.PAddr) (Slot, bool) {
	pt := root
	for level := Levels - 1; level > 0; level-- {
		s := Slot{Table: pt, Index: index(addr, levelBits(level))}
		e := s.Load()
		if !e.IsTable() {
			return Slot{}, false
		}
		if e.Address() == table {
			return s, true
		}
		pt = a.LookupPTEs(e.Address())
		if pt == nil {
			panic(fmt.Sprintf("table entry %v at level %d for %v names no table", e, level, addr))
		}
	}
	return Slot{}, false
}

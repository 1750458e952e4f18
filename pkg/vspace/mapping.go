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
	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/pagetables"
)

// MapTable links table below root at the first empty slot on the path to
// table.MappedAddr.
//
// It fails with ErrDeleteFirst if that path already ends in a valid entry,
// or if it reaches the last level, where no table can be linked.
func (c *Core) MapTable(root RootCap, table TableCap) error {
	k := c.k
	s, bitsLeft := pagetables.LookupSlot(k.alloc, k.table(root.Base), table.MappedAddr)
	if bitsLeft == hostarch.PageShift || s.Load().Valid() {
		return ErrDeleteFirst
	}
	s.Store(pagetables.EncodeTable(table.Base))
	c.syncSlot(s)
	log.Debugf("cpu%d: table %v linked for %v in %v (%d bits left)", c.ID(), table.Base, table.MappedAddr, root.ASID, bitsLeft)
	return nil
}

// frameAttrs returns the attributes of a user mapping of frame.
func (k *Kernel) frameAttrs(frame FrameCap, executable bool) pagetables.Attrs {
	attrs := pagetables.Attrs{
		Rights:     frame.Rights,
		Executable: executable,
		MemoryType: hostarch.MemoryTypeWriteBack,
		Shareable:  k.smp,
	}
	if frame.Device {
		attrs.MemoryType = hostarch.MemoryTypeUncached
		attrs.Shareable = false
	}
	return attrs
}

// MapPage maps frame at frame.MappedAddr below root.
//
// The tables down to the frame's level must already be linked; otherwise a
// LookupFault reports how many address bits remained unresolved. Replacing
// a valid entry invalidates its stale translation.
func (c *Core) MapPage(root RootCap, frame FrameCap, executable bool) error {
	k := c.k
	if !pagetables.CheckVPAlignment(frame.Size, frame.MappedAddr) || uint64(frame.Base)&(frame.Size.Bytes()-1) != 0 {
		return ErrAlignment
	}
	s, bitsLeft := pagetables.LookupSlot(k.alloc, k.table(root.Base), frame.MappedAddr)
	if bitsLeft != frame.Size.Bits() {
		return &LookupFault{Type: FaultMissingCapability, BitsLeft: bitsLeft}
	}
	old := s.Load()
	s.Store(pagetables.EncodeLeaf(frame.Base, k.frameAttrs(frame, executable), frame.Size))
	c.syncSlot(s)
	if old.Valid() {
		c.InvalidateTLBVA(root.ASID, frame.MappedAddr)
	}
	log.Debugf("cpu%d: %v frame %v mapped at %v in %v", c.ID(), frame.Size, frame.Base, frame.MappedAddr, root.ASID)
	return nil
}

// UnmapTable unlinks the table at table from the address space of a, on the
// path to addr.
//
// The table being gone already is not an error: nothing happens if a has no
// root, or if the path does not lead to table.
func (c *Core) UnmapTable(a asid.ASID, addr hostarch.VAddr, table hostarch.PAddr) {
	k := c.k
	root, rootPhysical, err := k.findRoot(a)
	if err != nil {
		log.Debugf("cpu%d: unmap table %v: %v has no root", c.ID(), table, a)
		return
	}
	if rootPhysical == table {
		panic("unmapping a root as a table")
	}
	s, ok := pagetables.FindTable(k.alloc, root, addr, table)
	if !ok {
		log.Debugf("cpu%d: unmap table %v: not linked for %v in %v", c.ID(), table, addr, a)
		return
	}
	s.Clear()
	c.syncSlot(s)
	c.InvalidateTLB(a)
}

// UnmapPage removes the mapping of frame at addr in the address space of a.
//
// It returns a LookupFault if a has no root. A mapping that is already gone
// is not an error: nothing happens if the entry at addr is not a leaf of
// the given size naming frame.
func (c *Core) UnmapPage(size pagetables.PageSize, a asid.ASID, addr hostarch.VAddr, frame hostarch.PAddr) error {
	k := c.k
	root, _, err := k.findRoot(a)
	if err != nil {
		return err
	}
	s, bitsLeft := pagetables.LookupSlot(k.alloc, root, addr)
	if bitsLeft != size.Bits() {
		log.Debugf("cpu%d: unmap %v at %v in %v: walk stopped with %d bits left", c.ID(), size, addr, a, bitsLeft)
		return nil
	}
	pte := s.Load()
	if !pte.IsLeaf() || pte.Address() != frame {
		log.Debugf("cpu%d: unmap %v at %v in %v: entry %v does not name %v", c.ID(), size, addr, a, pte, frame)
		return nil
	}
	s.Clear()
	c.syncSlot(s)
	c.InvalidateTLBVA(a, addr)
	return nil
}

// Lookup resolves addr in the address space of a.
func (c *Core) Lookup(a asid.ASID, addr hostarch.VAddr) (hostarch.PAddr, pagetables.Decoded, uint, error) {
	root, _, err := c.k.findRoot(a)
	if err != nil {
		return 0, pagetables.Decoded{}, 0, err
	}
	physical, d, bitsLeft, ok := pagetables.Translate(c.k.alloc, root, addr)
	if !ok {
		return 0, d, bitsLeft, &LookupFault{Type: FaultMissingCapability, BitsLeft: bitsLeft}
	}
	return physical, d, bitsLeft, nil
}

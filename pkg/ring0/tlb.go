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

package ring0

import (
	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
)

type tlbKey struct {
	asid asid.ASID
	page hostarch.VAddr
}

// tlb caches translations of one processor.
//
// Global translations match every ASID and are kept apart.
type tlb struct {
	entries map[tlbKey]hostarch.PAddr
	globals map[hostarch.VAddr]hostarch.PAddr
}

func newTLB() tlb {
	return tlb{
		entries: make(map[tlbKey]hostarch.PAddr),
		globals: make(map[hostarch.VAddr]hostarch.PAddr),
	}
}

func (t *tlb) fill(a asid.ASID, addr hostarch.VAddr, physical hostarch.PAddr, global bool) {
	page := addr.RoundDown()
	if global {
		t.globals[page] = physical.RoundDown()
		return
	}
	t.entries[tlbKey{a, page}] = physical.RoundDown()
}

func (t *tlb) lookup(a asid.ASID, addr hostarch.VAddr) (hostarch.PAddr, bool) {
	page := addr.RoundDown()
	if p, ok := t.entries[tlbKey{a, page}]; ok {
		return p + hostarch.PAddr(addr.PageOffset()), true
	}
	if p, ok := t.globals[page]; ok {
		return p + hostarch.PAddr(addr.PageOffset()), true
	}
	return 0, false
}

func (t *tlb) flushAll() {
	clear(t.entries)
	clear(t.globals)
}

func (t *tlb) flushASID(a asid.ASID) {
	for k := range t.entries {
		if k.asid == a {
			delete(t.entries, k)
		}
	}
}

func (t *tlb) flushVA(a asid.ASID, addr hostarch.VAddr) {
	page := addr.RoundDown()
	delete(t.entries, tlbKey{a, page})
	delete(t.globals, page)
}

func (t *tlb) len() int {
	return len(t.entries) + len(t.globals)
}

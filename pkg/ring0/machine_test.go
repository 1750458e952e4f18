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
	"testing"

	"github.com/google/go-cmp/cmp"
	"vspace.dev/vspace/pkg/atomicbitops"
	"vspace.dev/vspace/pkg/platform"
)

func newTestMachine(t *testing.T, cores int, outer bool) *Machine {
	t.Helper()
	p := platform.Default()
	p.Cores = cores
	p.OuterCache = outer
	m := NewMachine(p)
	t.Cleanup(m.Stop)
	return m
}

func TestBroadcastReachesOthers(t *testing.T) {
	m := newTestMachine(t, 4, false)
	var hit [4]atomicbitops.Bool
	m.CPU(1).Broadcast(func(c CPU) {
		hit[c.ID()].Store(true)
	})
	for id := range hit {
		if got, want := hit[id].Load(), id != 1; got != want {
			t.Errorf("cpu%d ran the broadcast: %t, want %t", id, got, want)
		}
	}
	if got := m.IPIs(); got != 1 {
		t.Errorf("IPIs() = %d, want 1", got)
	}
}

func TestBroadcastUniprocessor(t *testing.T) {
	m := newTestMachine(t, 1, false)
	ran := false
	m.CPU(0).Broadcast(func(CPU) { ran = true })
	if ran {
		t.Errorf("broadcast ran on the sender")
	}
}

func TestBroadcastShootdown(t *testing.T) {
	m := newTestMachine(t, 3, false)
	for id := 0; id < 3; id++ {
		m.Fill(id, 3, 0x1000, 0x4000_1000, false)
	}
	c := m.CPU(2)
	c.InvalidateTLBVA(3, 0x1000)
	c.Broadcast(func(o CPU) {
		o.InvalidateTLBVA(3, 0x1000)
	})
	for id := 0; id < 3; id++ {
		if p, ok := m.Cached(id, 3, 0x1000); ok {
			t.Errorf("cpu%d still caches 0x1000 -> %v", id, p)
		}
	}
	tlbis := Filter(m.Events(), WithOp(OpInvalidateTLBVA))
	if len(tlbis) != 3 {
		t.Errorf("got %d TLB invalidations, want 3: %v", len(tlbis), tlbis)
	}
}

func TestTLB(t *testing.T) {
	m := newTestMachine(t, 1, false)
	c := m.CPU(0)
	m.Fill(0, 3, 0x1234, 0x4000_1000, false)
	m.Fill(0, 4, 0x1000, 0x4000_2000, false)
	m.Fill(0, 0, 0xffff_ff80_0000_0000, 0x4000_0000, true)

	if p, ok := m.Cached(0, 3, 0x1010); !ok || p != 0x4000_1010 {
		t.Errorf("Cached(3, 0x1010) = %v, %t", p, ok)
	}
	if p, ok := m.Cached(0, 7, 0xffff_ff80_0000_0008); !ok || p != 0x4000_0008 {
		t.Errorf("global translation not matched by asid 7: %v, %t", p, ok)
	}

	c.InvalidateTLBASID(3)
	if _, ok := m.Cached(0, 3, 0x1000); ok {
		t.Errorf("asid 3 entry survived InvalidateTLBASID(3)")
	}
	if _, ok := m.Cached(0, 4, 0x1000); !ok {
		t.Errorf("asid 4 entry dropped by InvalidateTLBASID(3)")
	}
	if _, ok := m.Cached(0, 3, 0xffff_ff80_0000_0000); !ok {
		t.Errorf("global entry dropped by InvalidateTLBASID(3)")
	}

	c.InvalidateTLBVA(4, 0xffff_ff80_0000_0000)
	if _, ok := m.Cached(0, 4, 0xffff_ff80_0000_0000); ok {
		t.Errorf("global entry survived InvalidateTLBVA")
	}

	c.InvalidateTLB()
	if n := m.CachedEntries(0); n != 0 {
		t.Errorf("%d entries survived InvalidateTLB", n)
	}
}

func TestEvents(t *testing.T) {
	m := newTestMachine(t, 2, false)
	c := m.CPU(1)
	c.SetUserRoot(0x3_0000_4000_1000)
	c.Barrier(DSB)
	c.CacheLine(CleanPoU, 0x1040)
	want := []Event{
		{CPU: 1, Op: OpSetUserRoot, Value: 0x3_0000_4000_1000},
		{CPU: 1, Op: OpBarrier, Value: uint64(DSB)},
		{CPU: 1, Op: OpCacheLine, VAddr: 0x1040, Value: uint64(CleanPoU)},
	}
	if diff := cmp.Diff(want, m.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
	if got := c.UserRoot(); got != 0x3_0000_4000_1000 {
		t.Errorf("UserRoot() = %#x", got)
	}
	m.ResetEvents()
	if len(m.Events()) != 0 {
		t.Errorf("events left after ResetEvents")
	}
}

func TestOuterCache(t *testing.T) {
	if newTestMachine(t, 1, false).CPU(0).Outer() != nil {
		t.Errorf("outer cache present without outer_cache")
	}
	m := newTestMachine(t, 1, true)
	o := m.CPU(0).Outer()
	if o == nil {
		t.Fatalf("no outer cache")
	}
	o.CleanRange(0x4000_0000, 0x4000_0fff)
	want := []Event{{CPU: -1, Op: OpOuterClean, PAddr: 0x4000_0000, Value: 0x4000_0fff}}
	if diff := cmp.Diff(want, m.Events()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcastAfterStop(t *testing.T) {
	m := newTestMachine(t, 2, false)
	m.Stop()
	m.Stop()
	defer func() {
		if recover() == nil {
			t.Errorf("broadcast on a stopped machine did not panic")
		}
	}()
	m.CPU(0).Broadcast(func(CPU) {})
}

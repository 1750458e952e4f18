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
	"errors"
	"testing"

	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/platform"
	"vspace.dev/vspace/pkg/pmem"
	"vspace.dev/vspace/pkg/ring0"
)

func newTestKernel(t *testing.T, cores int, outer bool) *Kernel {
	t.Helper()
	p := platform.Default()
	p.Cores = cores
	p.OuterCache = outer
	res := pmem.NewReservations()
	arena, err := pmem.NewArena(p.KernelELFPAddrTop(), p.PhysTop, res)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	k, err := New(p, arena, res)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(k.Close)
	k.Boot()
	return k
}

// testFrame returns a frame in RAM that no table is allocated from.
func testFrame(k *Kernel, i int) hostarch.PAddr {
	return k.platform.PhysBase + 0x3000_0000 + hostarch.PAddr(i)*hostarch.HugePageSize
}

// newBoundRoot returns a root bound to a, installing pool 0 if needed.
func newBoundRoot(t *testing.T, c *Core, a asid.ASID) RootCap {
	t.Helper()
	if c.k.asids.Pool(a.High()) == nil {
		if _, err := c.InstallPool(asid.Base(a.High()), asid.NewPool()); err != nil {
			t.Fatalf("InstallPool: %v", err)
		}
	}
	root, err := c.k.NewRoot()
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	root, err = c.BindASID(a, root)
	if err != nil {
		t.Fatalf("BindASID: %v", err)
	}
	return root
}

// linkTo links tables below root until the walk for addr stops with
// bitsLeft bits left.
func linkTo(t *testing.T, c *Core, root RootCap, addr hostarch.VAddr, bitsLeft uint) {
	t.Helper()
	for {
		_, got := pagetables.LookupSlot(c.k.alloc, c.k.table(root.Base), addr)
		if got == bitsLeft {
			return
		}
		if _, err := c.CreateTableCap(root, addr); err != nil {
			t.Fatalf("CreateTableCap(%v): %v", addr, err)
		}
	}
}

func tlbEvents(k *Kernel, op ring0.Op) []ring0.Event {
	return ring0.Filter(k.machine.Events(), ring0.WithOp(op))
}

func TestNewRejectsInvalidPlatform(t *testing.T) {
	p := platform.Default()
	p.Cores = 0
	res := pmem.NewReservations()
	arena, err := pmem.NewArena(p.KernelELFPAddrTop(), p.PhysTop, res)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	if _, err := New(p, arena, res); err == nil {
		t.Errorf("New accepted a platform without cores")
	}
}

func TestNewReservesImage(t *testing.T) {
	p := platform.Default()
	res := pmem.NewReservations()
	arena, err := pmem.NewArena(p.KernelELFPAddrTop(), p.PhysTop, res)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	k, err := New(p, arena, res)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer k.Close()
	if !res.Reserved(p.KernelELFPAddr) {
		t.Errorf("kernel image not reserved")
	}
}

func TestBootTwice(t *testing.T) {
	k := newTestKernel(t, 1, false)
	if !k.Booted() {
		t.Fatalf("Booted() = false")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("second Boot did not panic")
		}
	}()
	k.Boot()
}

// TestScenario binds ASID 3, maps a 4K frame at 0x1000, then unmaps it
// with the wrong frame and with the right one.
func TestScenario(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	linkTo(t, c, root, 0x1000, hostarch.PageShift)

	frame := testFrame(k, 0)
	if err := c.MapPage(root, FrameCap{
		Base:       frame,
		Size:       pagetables.SmallPage,
		Rights:     pagetables.ReadWrite,
		MappedAddr: 0x1000,
		ASID:       3,
		Mapped:     true,
	}, false); err != nil {
		t.Fatalf("MapPage: %v", err)
	}

	s, bitsLeft := pagetables.LookupSlot(k.alloc, k.table(root.Base), 0x1000)
	if bitsLeft != hostarch.PageShift {
		t.Fatalf("bitsLeft = %d, want %d", bitsLeft, hostarch.PageShift)
	}
	before := s.Load()
	if d := pagetables.Decode(before); d.Kind != pagetables.Leaf || d.Addr != frame || d.Attrs.Rights != pagetables.ReadWrite {
		t.Fatalf("slot = %+v, want a read-write leaf for %v", d, frame)
	}

	k.machine.ResetEvents()
	if err := c.UnmapPage(pagetables.SmallPage, 3, 0x1000, frame+hostarch.PageSize); err != nil {
		t.Errorf("UnmapPage with the wrong frame: %v", err)
	}
	if s.Load() != before {
		t.Errorf("UnmapPage with the wrong frame changed the slot to %v", s.Load())
	}
	if got := tlbEvents(k, ring0.OpInvalidateTLBVA); len(got) != 0 {
		t.Errorf("UnmapPage with the wrong frame invalidated %v", got)
	}

	if err := c.UnmapPage(pagetables.SmallPage, 3, 0x1000, frame); err != nil {
		t.Errorf("UnmapPage: %v", err)
	}
	if s.Load().Valid() {
		t.Errorf("slot still valid: %v", s.Load())
	}
	got := tlbEvents(k, ring0.OpInvalidateTLBVA)
	if len(got) != 1 || got[0].ASID != 3 || got[0].VAddr != 0x1000 {
		t.Errorf("TLB invalidations = %v, want one for asid 3 at 0x1000", got)
	}

	// Unmapping again is a no-op.
	if err := c.UnmapPage(pagetables.SmallPage, 3, 0x1000, frame); err != nil {
		t.Errorf("second UnmapPage: %v", err)
	}
	if s.Load().Valid() {
		t.Errorf("slot valid after the second unmap")
	}
}

func TestMapPageMissingTable(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	err := c.MapPage(root, FrameCap{Base: testFrame(k, 0), Size: pagetables.SmallPage, MappedAddr: 0x1000}, false)
	var fault *LookupFault
	if !errors.As(err, &fault) {
		t.Fatalf("MapPage = %v, want a LookupFault", err)
	}
	want := hostarch.PageShift + 9*uint(pagetables.Levels-1)
	if fault.Type != FaultMissingCapability || fault.BitsLeft != want {
		t.Errorf("fault = %+v, want missing capability with %d bits left", fault, want)
	}
}

func TestMapPageAlignment(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	for _, frame := range []FrameCap{
		{Base: testFrame(k, 0), Size: pagetables.LargePage, MappedAddr: 0x1000},
		{Base: testFrame(k, 0) + hostarch.PageSize, Size: pagetables.LargePage, MappedAddr: 0x20_0000},
	} {
		if err := c.MapPage(root, frame, false); !errors.Is(err, ErrAlignment) {
			t.Errorf("MapPage(%+v) = %v, want ErrAlignment", frame, err)
		}
	}
}

func TestMapPageReplace(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	linkTo(t, c, root, 0x1000, hostarch.PageShift)
	frame := FrameCap{Base: testFrame(k, 0), Size: pagetables.SmallPage, Rights: pagetables.ReadOnly, MappedAddr: 0x1000}
	if err := c.MapPage(root, frame, false); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	if got := tlbEvents(k, ring0.OpInvalidateTLBVA); len(got) != 0 {
		t.Errorf("mapping an empty slot invalidated %v", got)
	}
	frame.Base = testFrame(k, 1)
	if err := c.MapPage(root, frame, true); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	if got := tlbEvents(k, ring0.OpInvalidateTLBVA); len(got) != 1 {
		t.Errorf("replacing a mapping invalidated %v, want one entry", got)
	}
	physical, d, _, err := c.Lookup(3, 0x1234)
	if err != nil || physical != frame.Base+0x234 || !d.Attrs.Executable || d.Attrs.Rights != pagetables.ReadOnly {
		t.Errorf("Lookup(0x1234) = %v, %+v, %v", physical, d, err)
	}
}

func TestMapTable(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	linkTo(t, c, root, 0x1000, hostarch.PageShift)

	table, err := k.NewTable()
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	table.MappedAddr = 0x1000
	if err := c.MapTable(root, table); !errors.Is(err, ErrDeleteFirst) {
		t.Errorf("MapTable at the last level = %v, want ErrDeleteFirst", err)
	}

	const large = 0x4000_0000
	linkTo(t, c, root, large, hostarch.HugePageShift)
	if err := c.MapPage(root, FrameCap{Base: testFrame(k, 0), Size: pagetables.LargePage, MappedAddr: large}, false); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	table.MappedAddr = large
	if err := c.MapTable(root, table); !errors.Is(err, ErrDeleteFirst) {
		t.Errorf("MapTable over a valid entry = %v, want ErrDeleteFirst", err)
	}
}

func TestUnmapPageNoRoot(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	err := c.UnmapPage(pagetables.SmallPage, 9, 0x1000, testFrame(k, 0))
	var fault *LookupFault
	if !errors.As(err, &fault) || fault.Type != FaultInvalidRoot {
		t.Errorf("UnmapPage = %v, want an invalid root fault", err)
	}
}

func TestUnmapPageWrongSize(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	linkTo(t, c, root, 0x1000, hostarch.PageShift)
	frame := FrameCap{Base: testFrame(k, 0), Size: pagetables.SmallPage, MappedAddr: 0x1000}
	if err := c.MapPage(root, frame, false); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	if err := c.UnmapPage(pagetables.LargePage, 3, 0x1000, frame.Base); err != nil {
		t.Errorf("UnmapPage with the wrong size: %v", err)
	}
	if _, _, _, err := c.Lookup(3, 0x1000); err != nil {
		t.Errorf("mapping gone after an unmap with the wrong size: %v", err)
	}
}

func TestUnmapTable(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	linkTo(t, c, root, 0x1000, hostarch.PageShift)
	s, _ := pagetables.LookupSlot(k.alloc, k.table(root.Base), 0x1000)
	last := k.alloc.PhysicalFor(s.Table)

	// Not linked: nothing happens.
	c.UnmapTable(3, 0x1000, testFrame(k, 0))
	c.UnmapTable(9, 0x1000, last)
	if _, bitsLeft := pagetables.LookupSlot(k.alloc, k.table(root.Base), 0x1000); bitsLeft != hostarch.PageShift {
		t.Fatalf("table unlinked by a mismatched UnmapTable")
	}

	k.machine.ResetEvents()
	c.UnmapTable(3, 0x1000, last)
	if _, bitsLeft := pagetables.LookupSlot(k.alloc, k.table(root.Base), 0x1000); bitsLeft != hostarch.HugePageShift {
		t.Errorf("walk after UnmapTable stops with %d bits left, want %d", bitsLeft, hostarch.HugePageShift)
	}
	got := tlbEvents(k, ring0.OpInvalidateTLBASID)
	if len(got) != 1 || got[0].ASID != 3 {
		t.Errorf("TLB invalidations = %v, want one for asid 3", got)
	}
}

func TestSetActiveUserRoot(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	defaultRoot := k.window.UserRootPhysical()

	if err := c.SetActiveUserRoot(root); err != nil {
		t.Fatalf("SetActiveUserRoot: %v", err)
	}
	if a, r := c.ActiveUserRoot(); a != 3 || r != root.Base {
		t.Errorf("active root = %v, %v, want asid 3, %v", a, r, root.Base)
	}

	for _, tc := range []struct {
		name  string
		cap   Cap
		fault bool
	}{
		{"null", NullCap{}, false},
		{"table", TableCap{Base: root.Base}, false},
		{"unmapped root", RootCap{Base: root.Base}, false},
		{"unbound asid", RootCap{Base: root.Base, ASID: 9, Mapped: true}, true},
		{"other root", RootCap{Base: root.Base + hostarch.PageSize, ASID: 3, Mapped: true}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := c.SetActiveUserRoot(root); err != nil {
				t.Fatalf("SetActiveUserRoot: %v", err)
			}
			err := c.SetActiveUserRoot(tc.cap)
			var fault *LookupFault
			if got := errors.As(err, &fault); got != tc.fault {
				t.Errorf("SetActiveUserRoot = %v, want fault %t", err, tc.fault)
			}
			if a, r := c.ActiveUserRoot(); a != asid.Invalid || r != defaultRoot {
				t.Errorf("active root = %v, %v, want the default %v", a, r, defaultRoot)
			}
		})
	}
}

func TestDeleteASID(t *testing.T) {
	k := newTestKernel(t, 2, false)
	c := k.Core(0)
	root := newBoundRoot(t, c, 3)
	if err := c.SetActiveUserRoot(root); err != nil {
		t.Fatalf("SetActiveUserRoot: %v", err)
	}
	for id := 0; id < 2; id++ {
		k.machine.Fill(id, 3, 0x1000, testFrame(k, 0), false)
	}

	c.DeleteASID(3, root.Base+hostarch.PageSize, root)
	if _, err := c.FindVSpace(3); err != nil {
		t.Fatalf("DeleteASID with the wrong root unbound asid 3: %v", err)
	}

	c.DeleteASID(3, root.Base, root)
	if _, err := c.FindVSpace(3); err == nil {
		t.Errorf("asid 3 still bound")
	}
	for id := 0; id < 2; id++ {
		if _, ok := k.machine.Cached(id, 3, 0x1000); ok {
			t.Errorf("cpu%d still caches asid 3", id)
		}
	}
	if a, _ := c.ActiveUserRoot(); a != asid.Invalid {
		t.Errorf("deleted address space %v still active", a)
	}
}

func TestASIDPools(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	if _, err := c.InstallPool(3, asid.NewPool()); !errors.Is(err, ErrAlignment) {
		t.Errorf("InstallPool(3) = %v, want ErrAlignment", err)
	}
	base := asid.Base(1)
	pool, err := c.InstallPool(base, asid.NewPool())
	if err != nil {
		t.Fatalf("InstallPool: %v", err)
	}
	if _, err := c.InstallPool(base, asid.NewPool()); !errors.Is(err, asid.ErrPoolExists) {
		t.Errorf("second InstallPool = %v, want ErrPoolExists", err)
	}
	root, err := k.NewRoot()
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	if _, err := c.BindASID(base+1, root); err != nil {
		t.Fatalf("BindASID: %v", err)
	}
	if a, ok := c.FindFreeASID(); !ok || a != base {
		t.Errorf("FindFreeASID() = %v, %t, want %v", a, ok, base)
	}

	c.DeleteASIDPool(base, asid.NewPool(), NullCap{})
	if _, err := c.FindVSpace(base + 1); err != nil {
		t.Fatalf("DeleteASIDPool of another pool removed the binding: %v", err)
	}
	c.DeleteASIDPool(base, pool.Pool, NullCap{})
	if _, err := c.FindVSpace(base + 1); err == nil {
		t.Errorf("binding survived DeleteASIDPool")
	}
	got := tlbEvents(k, ring0.OpInvalidateTLBASID)
	if len(got) != 1 || got[0].ASID != base+1 {
		t.Errorf("TLB invalidations = %v, want one for %v", got, base+1)
	}
}

func TestUnbindASID(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	rootA := newBoundRoot(t, c, 3)
	rootB, err := k.NewRoot()
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	if _, err := c.BindASID(3, rootB); err != nil {
		t.Fatalf("BindASID: %v", err)
	}
	if c.UnbindASID(3, rootA.Base) {
		t.Errorf("stale UnbindASID succeeded")
	}
	if got, err := c.FindVSpace(3); err != nil || got != rootB.Base {
		t.Errorf("FindVSpace(3) = %v, %v, want %v", got, err, rootB.Base)
	}
	if !c.UnbindASID(3, rootB.Base) {
		t.Errorf("UnbindASID failed")
	}
}

func TestBroadcastShootdown(t *testing.T) {
	k := newTestKernel(t, 4, false)
	if n := k.NumCores(); n != 4 {
		t.Fatalf("NumCores() = %d, want 4", n)
	}
	before := k.machine.IPIs()
	for id := 0; id < 4; id++ {
		k.machine.Fill(id, 3, 0x1000, testFrame(k, 0), false)
		k.machine.Fill(id, 4, 0x1000, testFrame(k, 1), false)
	}
	k.Core(2).InvalidateTLBVA(3, 0x1000)
	for id := 0; id < 4; id++ {
		if _, ok := k.machine.Cached(id, 3, 0x1000); ok {
			t.Errorf("cpu%d still caches asid 3", id)
		}
		if _, ok := k.machine.Cached(id, 4, 0x1000); !ok {
			t.Errorf("cpu%d lost asid 4", id)
		}
	}
	if got := k.machine.IPIs() - before; got != 1 {
		t.Errorf("%d broadcasts, want 1", got)
	}

	k.Core(1).InvalidateTLBAll()
	for id := 0; id < 4; id++ {
		if n := k.machine.CachedEntries(id); n != 0 {
			t.Errorf("cpu%d caches %d entries after InvalidateTLBAll", id, n)
		}
	}
}

func TestKernelDeviceHotplug(t *testing.T) {
	k := newTestKernel(t, 2, false)
	res := k.reserver.(*pmem.Reservations)
	d := testDevice()

	if err := k.Core(0).AddKernelDevice(d); err != nil {
		t.Fatalf("AddKernelDevice: %v", err)
	}
	if got, _, _, ok := k.window.Translate(d.VAddr); !ok || got != d.PAddr {
		t.Fatalf("Translate(%v) = %v, %t, want %v", d.VAddr, got, ok, d.PAddr)
	}
	if !res.Reserved(d.PAddr) {
		t.Errorf("device frame %v not reserved", d.PAddr)
	}

	for id := 0; id < 2; id++ {
		k.machine.Fill(id, asid.Invalid, d.VAddr, d.PAddr, true)
	}
	before := k.machine.IPIs()
	if !k.Core(0).RemoveKernelDevice(d.VAddr) {
		t.Fatalf("RemoveKernelDevice(%v) = false", d.VAddr)
	}
	for id := 0; id < 2; id++ {
		if p, ok := k.machine.Cached(id, asid.Invalid, d.VAddr); ok {
			t.Errorf("cpu%d still caches %v -> %v", id, d.VAddr, p)
		}
	}
	if k.machine.IPIs() == before {
		t.Errorf("RemoveKernelDevice did not reach the other processor")
	}
	if _, _, _, ok := k.window.Translate(d.VAddr); ok {
		t.Errorf("%v still mapped after RemoveKernelDevice", d.VAddr)
	}
	if res.Reserved(d.PAddr) {
		t.Errorf("device frame %v still reserved", d.PAddr)
	}
	if k.Core(0).RemoveKernelDevice(d.VAddr) {
		t.Errorf("second RemoveKernelDevice(%v) = true", d.VAddr)
	}
	if err := k.Core(1).AddKernelDevice(d); err != nil {
		t.Errorf("AddKernelDevice after removal: %v", err)
	}
}

func TestUniprocessorDoesNotBroadcast(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	c.InvalidateTLB(3)
	c.InvalidateTLBVA(3, 0x1000)
	c.InvalidateTLBAll()
	c.Flush(FlushUnify, 0, 0xfff, 0)
	if got := k.machine.IPIs(); got != 0 {
		t.Errorf("%d broadcasts on a uniprocessor", got)
	}
}

func TestFlushUnknownPanics(t *testing.T) {
	k := newTestKernel(t, 1, false)
	defer func() {
		if recover() == nil {
			t.Errorf("Flush with an unknown op did not panic")
		}
	}()
	k.Core(0).Flush(FlushOp(9), 0, 0xfff, 0)
}

func TestPageFlushRange(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)
	frame := c.CreateUnmappedFrameCap(testFrame(k, 0), false)
	for _, tc := range []struct {
		offset, length uint64
		want           error
	}{
		{0, hostarch.PageSize, nil},
		{0x800, 0x800, nil},
		{0x800, 0x801, ErrRange},
		{hostarch.PageSize, 1, ErrRange},
		{0, 0, ErrRange},
	} {
		if err := c.PageFlush(FlushClean, frame, tc.offset, tc.length); !errors.Is(err, tc.want) {
			t.Errorf("PageFlush(%#x, %#x) = %v, want %v", tc.offset, tc.length, err, tc.want)
		}
	}
}

func TestBootBridge(t *testing.T) {
	k := newTestKernel(t, 1, false)
	c := k.Core(0)

	root, err := c.CreateRootCap(asid.InitialTask)
	if err != nil {
		t.Fatalf("CreateRootCap: %v", err)
	}
	if err := c.WriteInitialASIDPool(PoolCap{Base: 0, Pool: asid.NewPool()}, root); err != nil {
		t.Fatalf("WriteInitialASIDPool: %v", err)
	}
	if got, err := c.FindVSpace(asid.InitialTask); err != nil || got != root.Base {
		t.Errorf("FindVSpace(InitialTask) = %v, %v, want %v", got, err, root.Base)
	}

	tables, err := c.CreateTableCaps(root, 0x40_0000, 0x60_0000, pagetables.SmallPage)
	if err != nil {
		t.Fatalf("CreateTableCaps: %v", err)
	}
	if want := pagetables.Levels - 1; len(tables) != want {
		t.Errorf("created %d tables, want %d", len(tables), want)
	}

	more, err := c.CreateTableCaps(root, 0x40_0000, 0x80_0000, pagetables.LargePage)
	if err != nil || len(more) != 0 {
		t.Errorf("CreateTableCaps(LargePage) = %d tables, %v, want none", len(more), err)
	}

	small, err := c.CreateMappedFrameCap(root, testFrame(k, 0), 0x40_0000, asid.InitialTask, false, true)
	if err != nil {
		t.Fatalf("CreateMappedFrameCap: %v", err)
	}
	large, err := c.CreateMappedFrameCap(root, testFrame(k, 1), 0x60_0000, asid.InitialTask, true, false)
	if err != nil {
		t.Fatalf("CreateMappedFrameCap(large): %v", err)
	}
	for _, f := range []FrameCap{small, large} {
		physical, d, bitsLeft, err := c.Lookup(asid.InitialTask, f.MappedAddr+0x10)
		if err != nil || physical != f.Base+0x10 || bitsLeft != f.Size.Bits() {
			t.Errorf("Lookup(%v) = %v, %d, %v, want %v", f.MappedAddr+0x10, physical, bitsLeft, err, f.Base+0x10)
		}
		if d.Attrs.Rights != pagetables.ReadWrite || d.Attrs.Global {
			t.Errorf("frame %v attributes = %+v", f.Base, d.Attrs)
		}
	}

	if _, err := c.CreateMappedFrameCap(root, testFrame(k, 2), 0x8000_0000, asid.InitialTask, false, false); err == nil {
		t.Errorf("CreateMappedFrameCap without tables succeeded")
	}
	if f := c.CreateUnmappedFrameCap(testFrame(k, 2), true); f.Mapped || f.Size != pagetables.LargePage {
		t.Errorf("CreateUnmappedFrameCap = %+v", f)
	}

	if err := c.SetActiveUserRoot(root); err != nil {
		t.Fatalf("SetActiveUserRoot: %v", err)
	}
	if a, r := c.ActiveUserRoot(); a != asid.InitialTask || r != root.Base {
		t.Errorf("active root = %v, %v", a, r)
	}
}

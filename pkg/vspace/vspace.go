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

// Package vspace is the architecture specific virtual memory core.
//
// A Kernel owns the kernel window, the ASID directory and one Core per
// processor. Operations run on a Core: they edit page tables, switch
// translation roots and maintain TLBs and caches. Invalidations that other
// processors may depend on are broadcast to them before the operation
// returns.
//
// Callers serialize operations touching the same table. The ASID directory
// is the only state updated concurrently without the caller's locking.
package vspace

import (
	"errors"
	"fmt"
	"time"

	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/atomicbitops"
	"vspace.dev/vspace/pkg/cleanup"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/platform"
	"vspace.dev/vspace/pkg/ring0"
)

// ErrNoMemory is returned when the table allocator is exhausted.
var ErrNoMemory = errors.New("out of page table memory")

// Kernel is the state shared by all processors.
type Kernel struct {
	platform *platform.Platform
	alloc    pagetables.StaticAllocator
	reserver pagetables.Reserver
	window   *pagetables.KernelWindow
	asids    asid.Directory
	machine  *ring0.Machine
	cores    []*Core

	// smp is set when maintenance must be broadcast.
	smp bool

	// lineBits is the binary log of the L1 cache line size.
	lineBits uint

	booted atomicbitops.Bool

	// stale reports fallbacks to the default user root, which may repeat
	// on every switch to a thread with a stale root.
	stale log.Logger

	stop func()
}

// Core is one processor's view of the kernel.
type Core struct {
	k   *Kernel
	cpu ring0.CPU
}

// New prepares the kernel for p. Page tables are resolved through alloc and
// frames withheld from the allocator are reserved with r. The kernel window
// is populated by Boot.
func New(p *platform.Platform, alloc pagetables.StaticAllocator, r pagetables.Reserver) (*Kernel, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid platform %q: %w", p.Name, err)
	}
	p = p.Clone()

	w, err := pagetables.NewKernelWindow(p, alloc)
	if err != nil {
		return nil, fmt.Errorf("placing kernel window: %w", err)
	}

	m := ring0.NewMachine(p)
	cu := cleanup.Make(m.Stop)
	defer cu.Clean()

	if !r.Reserve(p.KernelELFPAddr, p.KernelELFPAddrTop()) {
		return nil, fmt.Errorf("kernel image [%v, %v) is already reserved", p.KernelELFPAddr, p.KernelELFPAddrTop())
	}

	k := &Kernel{
		platform: p,
		alloc:    alloc,
		reserver: r,
		window:   w,
		machine:  m,
		smp:      p.SMP(),
		lineBits: p.L1CacheLineBits,
		stale:    log.BasicRateLimitedLogger(time.Minute),
	}
	for id := 0; id < m.NumCPUs(); id++ {
		k.cores = append(k.cores, &Core{k: k, cpu: m.CPU(id)})
	}
	k.stop = cu.Release()
	return k, nil
}

// Boot populates the kernel window and activates it on every processor.
// It must be called once, before any other operation.
func (k *Kernel) Boot() {
	if k.booted.Swap(true) {
		panic("kernel booted twice")
	}
	k.window.Map(k.reserver)
	for _, c := range k.cores {
		c.ActivateKernel()
	}
	log.Infof("Kernel window active on %d processors (%s, root %v)", len(k.cores), pagetables.Arch, k.window.RootPhysical())
}

// Booted returns true once Boot has run.
func (k *Kernel) Booted() bool {
	return k.booted.Load()
}

// Close stops the processors.
func (k *Kernel) Close() {
	k.stop()
}

// Core returns processor id.
func (k *Kernel) Core(id int) *Core {
	return k.cores[id]
}

// NumCores returns the number of processors.
func (k *Kernel) NumCores() int {
	return len(k.cores)
}

// Platform returns the kernel's copy of the platform description.
func (k *Kernel) Platform() *platform.Platform {
	return k.platform.Clone()
}

// Window returns the kernel window.
func (k *Kernel) Window() *pagetables.KernelWindow {
	return k.window
}

// Machine returns the processors.
func (k *Kernel) Machine() *ring0.Machine {
	return k.machine
}

// Allocator returns the table allocator.
func (k *Kernel) Allocator() pagetables.StaticAllocator {
	return k.alloc
}

// NewRoot allocates an unbound translation root holding the global kernel
// mappings.
func (k *Kernel) NewRoot() (RootCap, error) {
	pt := k.alloc.NewPTEs()
	if pt == nil {
		return RootCap{}, ErrNoMemory
	}
	k.window.CopyGlobalMappings(pt)
	return RootCap{Base: k.alloc.PhysicalFor(pt)}, nil
}

// NewTable allocates an unlinked intermediate table.
func (k *Kernel) NewTable() (TableCap, error) {
	pt := k.alloc.NewPTEs()
	if pt == nil {
		return TableCap{}, ErrNoMemory
	}
	return TableCap{Base: k.alloc.PhysicalFor(pt)}, nil
}

// table resolves the table at physical. The capability system only hands
// out tables it allocated, so a miss is fatal.
func (k *Kernel) table(physical hostarch.PAddr) *pagetables.PTEs {
	pt := k.alloc.LookupPTEs(physical)
	if pt == nil {
		panic(fmt.Sprintf("no page table at %v", physical))
	}
	return pt
}

// findRoot returns the root bound to a.
func (k *Kernel) findRoot(a asid.ASID) (*pagetables.PTEs, hostarch.PAddr, error) {
	root, err := k.asids.Lookup(a)
	if err != nil {
		return nil, 0, &LookupFault{Type: FaultInvalidRoot}
	}
	return k.table(root), root, nil
}

// ID returns the processor index.
func (c *Core) ID() int {
	return c.cpu.ID()
}

// CPU returns the processor state.
func (c *Core) CPU() ring0.CPU {
	return c.cpu
}

// broadcast runs fn on every other processor of an SMP platform.
func (c *Core) broadcast(fn func(ring0.CPU)) {
	if c.k.smp {
		c.cpu.Broadcast(fn)
	}
}

// syncSlot makes a page table write visible to the table walkers.
func (c *Core) syncSlot(s pagetables.Slot) {
	c.syncTableWrite(c.k.window.PaddrToPptr(s.Physical(c.k.alloc)))
}

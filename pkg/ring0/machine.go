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
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/atomicbitops"
	"vspace.dev/vspace/pkg/bits"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/platform"
)

// Machine contains the processors of one platform.
type Machine struct {
	// vCPUs are the processors, indexed by ID.
	vCPUs []*vCPU

	// online is the mask of processors accepting broadcasts.
	online uint64

	// outer is the outer cache, or nil.
	outer *outerCache

	trace trace

	// ipis counts broadcasts.
	ipis atomicbitops.Uint64

	// stopped is set by Stop.
	stopped atomicbitops.Bool

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	once   sync.Once
}

// request is a broadcast delivered to one vCPU.
type request struct {
	fn   func(CPU)
	done chan struct{}
}

// vCPU is a single processor.
type vCPU struct {
	_ cpu.CacheLinePad

	id int
	m  *Machine

	// requests carries broadcasts from other processors.
	requests chan request

	// mu protects the fields below. The owning processor and its service
	// loop both act on them.
	mu         sync.Mutex
	kernelRoot uint64
	userRoot   uint64
	tlb        tlb

	_ cpu.CacheLinePad
}

// NewMachine starts a machine with one processor per core of p.
func NewMachine(p *platform.Platform) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	m := &Machine{
		ctx:    ctx,
		cancel: cancel,
		g:      g,
	}
	if p.OuterCache {
		m.outer = &outerCache{m: m}
	}
	for id := 0; id < p.Cores; id++ {
		c := &vCPU{
			id:       id,
			m:        m,
			requests: make(chan request),
			tlb:      newTLB(),
		}
		m.vCPUs = append(m.vCPUs, c)
		m.online |= bits.MaskOf64(id)
		g.Go(func() error {
			return c.serve(ctx)
		})
	}
	log.Debugf("Machine started with %d processors", p.Cores)
	return m
}

// NumCPUs returns the number of processors.
func (m *Machine) NumCPUs() int {
	return len(m.vCPUs)
}

// CPU returns processor id.
func (m *Machine) CPU(id int) CPU {
	return m.vCPUs[id]
}

// Stop stops every service loop and waits for them to exit.
func (m *Machine) Stop() {
	m.once.Do(func() {
		m.stopped.Store(true)
		m.cancel()
		if err := m.g.Wait(); err != nil {
			log.Warningf("Machine stopped with error: %v", err)
		}
	})
}

// Events returns the recorded events in order.
func (m *Machine) Events() []Event {
	return m.trace.snapshot()
}

// ResetEvents drops the recorded events.
func (m *Machine) ResetEvents() {
	m.trace.reset()
}

// IPIs returns the number of broadcasts so far.
func (m *Machine) IPIs() uint64 {
	return m.ipis.Load()
}

// Fill caches the translation of addr in a on processor id, as a hardware
// walk would.
func (m *Machine) Fill(id int, a asid.ASID, addr hostarch.VAddr, physical hostarch.PAddr, global bool) {
	c := m.vCPUs[id]
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlb.fill(a, addr, physical, global)
}

// Cached returns the cached translation of addr in a on processor id.
func (m *Machine) Cached(id int, a asid.ASID, addr hostarch.VAddr) (hostarch.PAddr, bool) {
	c := m.vCPUs[id]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlb.lookup(a, addr)
}

// CachedEntries returns the number of cached translations on processor id.
func (m *Machine) CachedEntries(id int) int {
	c := m.vCPUs[id]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlb.len()
}

// serve runs broadcasts until ctx is done.
func (c *vCPU) serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-c.requests:
			r.fn(c)
			close(r.done)
		}
	}
}

// deliver hands fn to c's service loop and waits for it to run.
func (c *vCPU) deliver(ctx context.Context, fn func(CPU)) error {
	r := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- r:
	case <-ctx.Done():
		return fmt.Errorf("cpu%d: %w", c.id, ctx.Err())
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cpu%d: %w", c.id, ctx.Err())
	}
}

func (c *vCPU) record(e Event) {
	e.CPU = c.id
	c.m.trace.record(e)
}

// ID implements CPU.ID.
func (c *vCPU) ID() int {
	return c.id
}

// SetKernelRoot implements CPU.SetKernelRoot.
func (c *vCPU) SetKernelRoot(v uint64) {
	c.mu.Lock()
	c.kernelRoot = v
	c.mu.Unlock()
	c.record(Event{Op: OpSetKernelRoot, Value: v})
}

// SetUserRoot implements CPU.SetUserRoot.
func (c *vCPU) SetUserRoot(v uint64) {
	c.mu.Lock()
	c.userRoot = v
	c.mu.Unlock()
	c.record(Event{Op: OpSetUserRoot, Value: v})
}

// KernelRoot implements CPU.KernelRoot.
func (c *vCPU) KernelRoot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kernelRoot
}

// UserRoot implements CPU.UserRoot.
func (c *vCPU) UserRoot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userRoot
}

// Barrier implements CPU.Barrier.
func (c *vCPU) Barrier(b Barrier) {
	c.record(Event{Op: OpBarrier, Value: uint64(b)})
}

// InvalidateTLB implements CPU.InvalidateTLB.
func (c *vCPU) InvalidateTLB() {
	c.mu.Lock()
	c.tlb.flushAll()
	c.mu.Unlock()
	c.record(Event{Op: OpInvalidateTLB})
}

// InvalidateTLBASID implements CPU.InvalidateTLBASID.
func (c *vCPU) InvalidateTLBASID(a asid.ASID) {
	c.mu.Lock()
	c.tlb.flushASID(a)
	c.mu.Unlock()
	c.record(Event{Op: OpInvalidateTLBASID, ASID: a})
}

// InvalidateTLBVA implements CPU.InvalidateTLBVA.
func (c *vCPU) InvalidateTLBVA(a asid.ASID, addr hostarch.VAddr) {
	c.mu.Lock()
	c.tlb.flushVA(a, addr)
	c.mu.Unlock()
	c.record(Event{Op: OpInvalidateTLBVA, ASID: a, VAddr: addr})
}

// CacheLine implements CPU.CacheLine.
func (c *vCPU) CacheLine(op LineOp, addr hostarch.VAddr) {
	c.record(Event{Op: OpCacheLine, VAddr: addr, Value: uint64(op)})
}

// CleanInvalidateL1 implements CPU.CleanInvalidateL1.
func (c *vCPU) CleanInvalidateL1() {
	c.record(Event{Op: OpCleanInvalidateL1})
}

// InvalidateICache implements CPU.InvalidateICache.
func (c *vCPU) InvalidateICache() {
	c.record(Event{Op: OpInvalidateICache})
}

// Outer implements CPU.Outer.
func (c *vCPU) Outer() OuterCache {
	if c.m.outer == nil {
		return nil
	}
	return c.m.outer
}

// Broadcast implements CPU.Broadcast.
//
// It panics if the machine is stopped: a remote processor cannot refuse a
// broadcast, so one that cannot be delivered is fatal.
func (c *vCPU) Broadcast(fn func(CPU)) {
	m := c.m
	if m.stopped.Load() {
		panic(fmt.Sprintf("cpu%d: broadcast on a stopped machine", c.id))
	}
	m.ipis.Add(1)
	c.record(Event{Op: OpIPI})

	var g errgroup.Group
	bits.ForEachSetBit64(m.online&^bits.MaskOf64(c.id), func(i int) {
		target := m.vCPUs[i]
		g.Go(func() error {
			return target.deliver(m.ctx, fn)
		})
	})
	if err := g.Wait(); err != nil {
		panic(fmt.Sprintf("cpu%d: broadcast not acknowledged: %v", c.id, err))
	}
}

// outerCache is a platform wide cache maintained by physical address.
type outerCache struct {
	m *Machine
}

func (o *outerCache) CleanRange(start, end hostarch.PAddr) {
	o.m.trace.record(Event{CPU: -1, Op: OpOuterClean, PAddr: start, Value: uint64(end)})
}

func (o *outerCache) InvalidateRange(start, end hostarch.PAddr) {
	o.m.trace.record(Event{CPU: -1, Op: OpOuterInvalidate, PAddr: start, Value: uint64(end)})
}

func (o *outerCache) CleanInvalidateRange(start, end hostarch.PAddr) {
	o.m.trace.record(Event{CPU: -1, Op: OpOuterCleanInvalidate, PAddr: start, Value: uint64(end)})
}

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

// Package ring0 models the privileged per-processor state driven by the
// address space core: the translation root registers, the TLB, the cache
// maintenance primitives and inter-processor broadcasts.
//
// A Machine owns one vCPU per configured core. Every vCPU runs a service
// loop that executes requests broadcast by other vCPUs, so a broadcast only
// returns once every other core has performed the requested operation.
// Every primitive is recorded in an event trace.
package ring0

import (
	"fmt"

	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
)

// Barrier is a memory or instruction barrier.
type Barrier uint8

const (
	// DSB completes outstanding memory and maintenance operations.
	DSB Barrier = iota

	// DMB orders memory accesses.
	DMB

	// ISB flushes the pipeline.
	ISB

	// FenceRW orders reads and writes, including page table writes.
	FenceRW

	// FenceI synchronizes the instruction stream with prior stores.
	FenceI
)

// String implements fmt.Stringer.String.
func (b Barrier) String() string {
	switch b {
	case DSB:
		return "dsb"
	case DMB:
		return "dmb"
	case ISB:
		return "isb"
	case FenceRW:
		return "fence"
	case FenceI:
		return "fence.i"
	default:
		return fmt.Sprintf("Barrier(%d)", b)
	}
}

// LineOp is a maintenance operation on one cache line, addressed by
// virtual address.
type LineOp uint8

const (
	// CleanPoC writes a dirty data line back to the point of coherency.
	CleanPoC LineOp = iota

	// CleanPoU writes a dirty data line back to the point of unification.
	CleanPoU

	// Invalidate discards a data line.
	Invalidate

	// CleanInvalidate writes back and discards a data line.
	CleanInvalidate

	// InvalidateI discards an instruction line.
	InvalidateI
)

// String implements fmt.Stringer.String.
func (o LineOp) String() string {
	switch o {
	case CleanPoC:
		return "dc cvac"
	case CleanPoU:
		return "dc cvau"
	case Invalidate:
		return "dc ivac"
	case CleanInvalidate:
		return "dc civac"
	case InvalidateI:
		return "ic ivau"
	default:
		return fmt.Sprintf("LineOp(%d)", o)
	}
}

// OuterCache is a second level cache maintained by physical address.
type OuterCache interface {
	// CleanRange writes back [start, end].
	CleanRange(start, end hostarch.PAddr)

	// InvalidateRange discards [start, end].
	InvalidateRange(start, end hostarch.PAddr)

	// CleanInvalidateRange writes back and discards [start, end].
	CleanInvalidateRange(start, end hostarch.PAddr)
}

// CPU is the privileged state of one processor.
//
// Methods act on the local processor only, except Broadcast.
type CPU interface {
	// ID returns the processor index.
	ID() int

	// SetKernelRoot writes the kernel translation root register.
	SetKernelRoot(v uint64)

	// SetUserRoot writes the user translation root register.
	SetUserRoot(v uint64)

	// KernelRoot reads the kernel translation root register.
	KernelRoot() uint64

	// UserRoot reads the user translation root register.
	UserRoot() uint64

	// Barrier issues b.
	Barrier(b Barrier)

	// InvalidateTLB discards every local TLB entry.
	InvalidateTLB()

	// InvalidateTLBASID discards the non-global local TLB entries of a.
	InvalidateTLBASID(a asid.ASID)

	// InvalidateTLBVA discards the local TLB entries for the page holding
	// addr in a, and global entries for that page.
	InvalidateTLBVA(a asid.ASID, addr hostarch.VAddr)

	// CacheLine performs op on the line holding addr.
	CacheLine(op LineOp, addr hostarch.VAddr)

	// CleanInvalidateL1 writes back and discards the whole local data
	// cache.
	CleanInvalidateL1()

	// InvalidateICache discards the whole local instruction cache.
	InvalidateICache()

	// Outer returns the outer cache, or nil if there is none.
	Outer() OuterCache

	// Broadcast runs fn on every other processor and returns once all of
	// them have run it.
	Broadcast(fn func(CPU))
}

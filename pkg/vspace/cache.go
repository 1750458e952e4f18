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
	"fmt"

	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/ring0"
)

// Ranges below are inclusive: end is the last byte. pstart is the physical
// address of start, used for the outer cache.

// FlushOp is a cache maintenance request on a range.
type FlushOp uint8

const (
	// FlushClean writes dirty lines back to memory.
	FlushClean FlushOp = iota

	// FlushInvalidate discards lines.
	FlushInvalidate

	// FlushCleanInvalidate writes dirty lines back and discards them.
	FlushCleanInvalidate

	// FlushUnify makes stores visible to instruction fetch.
	FlushUnify
)

// String implements fmt.Stringer.String.
func (op FlushOp) String() string {
	switch op {
	case FlushClean:
		return "clean"
	case FlushInvalidate:
		return "invalidate"
	case FlushCleanInvalidate:
		return "clean-invalidate"
	case FlushUnify:
		return "unify"
	default:
		return fmt.Sprintf("FlushOp(%d)", op)
	}
}

// rangeOp runs fn here and on every other processor.
func (c *Core) rangeOp(fn func(ring0.CPU)) {
	fn(c.cpu)
	c.broadcast(fn)
}

func pend(pstart hostarch.PAddr, start, end hostarch.VAddr) hostarch.PAddr {
	return pstart + hostarch.PAddr(end-start)
}

// CleanCacheRangePoC writes [start, end] back to the point of coherency.
func (c *Core) CleanCacheRangePoC(start, end hostarch.VAddr) {
	bits := c.k.lineBits
	c.rangeOp(func(cpu ring0.CPU) {
		cacheRange(cpu, ring0.CleanPoC, start, end, bits)
	})
}

// CleanCacheRange writes [start, end] back to memory, through the outer
// cache.
func (c *Core) CleanCacheRange(start, end hostarch.VAddr, pstart hostarch.PAddr) {
	c.CleanCacheRangePoC(start, end)
	if o := c.cpu.Outer(); o != nil {
		o.CleanRange(pstart, pend(pstart, start, end))
	}
}

// CleanInvalidateCacheRange writes [start, end] back to memory and discards
// it from every cache level.
func (c *Core) CleanInvalidateCacheRange(start, end hostarch.VAddr, pstart hostarch.PAddr) {
	bits := c.k.lineBits
	c.rangeOp(func(cpu ring0.CPU) {
		cacheRange(cpu, ring0.CleanInvalidate, start, end, bits)
	})
	if o := c.cpu.Outer(); o != nil {
		o.CleanInvalidateRange(pstart, pend(pstart, start, end))
	}
}

// InvalidateCacheRange discards [start, end] from every cache level. Lines
// only partly inside the range are written back first.
func (c *Core) InvalidateCacheRange(start, end hostarch.VAddr, pstart hostarch.PAddr) {
	bits := c.k.lineBits
	c.rangeOp(func(cpu ring0.CPU) {
		invalidateEdges(cpu, start, end, bits)
	})
	if o := c.cpu.Outer(); o != nil {
		cleanOuterEdges(o, start, end, pstart, bits)
		o.InvalidateRange(pstart, pend(pstart, start, end))
	}
	c.rangeOp(func(cpu ring0.CPU) {
		cacheRange(cpu, ring0.Invalidate, start, end, bits)
	})
}

// cleanOuterEdges writes back the outer cache lines only partly inside
// [start, end].
func cleanOuterEdges(o ring0.OuterCache, start, end hostarch.VAddr, pstart hostarch.PAddr, lineBits uint) {
	mask := hostarch.VAddr(1)<<lineBits - 1
	clean := func(line hostarch.VAddr) {
		p := pstart + hostarch.PAddr(line-start)
		o.CleanRange(p, p+hostarch.PAddr(mask))
	}
	if start&mask != 0 {
		clean(start &^ mask)
	}
	if (end+1)&mask != 0 {
		clean(end &^ mask)
	}
}

// CleanCacheRangePoU writes [start, end] back to the point of unification.
func (c *Core) CleanCacheRangePoU(start, end hostarch.VAddr) {
	bits := c.k.lineBits
	c.rangeOp(func(cpu ring0.CPU) {
		cacheRange(cpu, ring0.CleanPoU, start, end, bits)
	})
}

// InvalidateICacheRange discards [start, end] from the instruction cache.
func (c *Core) InvalidateICacheRange(start, end hostarch.VAddr) {
	bits := c.k.lineBits
	c.rangeOp(func(cpu ring0.CPU) {
		cacheRange(cpu, ring0.InvalidateI, start, end, bits)
	})
}

// CleanInvalidateL1Caches writes back and discards this processor's whole
// L1 data cache, and discards its instruction cache.
func (c *Core) CleanInvalidateL1Caches() {
	c.cpu.CleanInvalidateL1()
	c.cpu.InvalidateICache()
	c.cpu.Barrier(ring0.DSB)
}

// Flush performs op on [start, end]. An unknown op is a programming error
// and panics.
func (c *Core) Flush(op FlushOp, start, end hostarch.VAddr, pstart hostarch.PAddr) {
	switch op {
	case FlushClean:
		c.CleanCacheRange(start, end, pstart)
	case FlushInvalidate:
		c.InvalidateCacheRange(start, end, pstart)
	case FlushCleanInvalidate:
		c.CleanInvalidateCacheRange(start, end, pstart)
	case FlushUnify:
		bits := c.k.lineBits
		c.rangeOp(func(cpu ring0.CPU) {
			unifyInstruction(cpu, start, end, bits)
		})
	default:
		panic(fmt.Sprintf("unsupported flush operation %v", op))
	}
}

// PageFlush performs op on [offset, offset+length) of frame, through its
// direct map alias.
func (c *Core) PageFlush(op FlushOp, frame FrameCap, offset, length uint64) error {
	if !frame.Contains(offset, length) {
		return ErrRange
	}
	pstart := frame.Base + hostarch.PAddr(offset)
	start := c.k.window.PaddrToPptr(pstart)
	c.Flush(op, start, start+hostarch.VAddr(length-1), pstart)
	return nil
}

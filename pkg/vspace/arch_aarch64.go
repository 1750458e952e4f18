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

//go:build !riscv64 && !sv39

package vspace

import (
	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/ring0"
)

// syncTableWrite cleans the line holding a table entry to the point of
// unification, where the table walker reads it.
func (c *Core) syncTableWrite(entry hostarch.VAddr) {
	c.cpu.CacheLine(ring0.CleanPoU, entry)
	c.cpu.Barrier(ring0.DSB)
}

// writeUserRoot programs TTBR0.
func writeUserRoot(cpu ring0.CPU, a asid.ASID, root hostarch.PAddr) {
	cpu.Barrier(ring0.DSB)
	cpu.SetUserRoot(pagetables.RootRegister(uint16(a), root))
	cpu.Barrier(ring0.ISB)
}

// activateKernel programs TTBR1 with the kernel root and TTBR0 with the
// global user root.
func (c *Core) activateKernel() {
	w := c.k.window
	c.cpu.CleanInvalidateL1()
	c.cpu.SetKernelRoot(pagetables.RootRegister(uint16(asid.Invalid), w.RootPhysical()))
	writeUserRoot(c.cpu, asid.Invalid, w.UserRootPhysical())
	invalidateTLBAll(c.cpu)
}

func invalidateTLBAll(cpu ring0.CPU) {
	cpu.Barrier(ring0.DSB)
	cpu.InvalidateTLB()
	cpu.Barrier(ring0.DSB)
	cpu.Barrier(ring0.ISB)
}

func invalidateTLBASID(cpu ring0.CPU, a asid.ASID) {
	cpu.Barrier(ring0.DSB)
	cpu.InvalidateTLBASID(a)
	cpu.Barrier(ring0.DSB)
	cpu.Barrier(ring0.ISB)
}

func invalidateTLBVA(cpu ring0.CPU, a asid.ASID, addr hostarch.VAddr) {
	cpu.Barrier(ring0.DSB)
	cpu.InvalidateTLBVA(a, addr)
	cpu.Barrier(ring0.DSB)
	cpu.Barrier(ring0.ISB)
}

// lineRange performs op on every line of [start, end].
func lineRange(cpu ring0.CPU, op ring0.LineOp, start, end hostarch.VAddr, lineBits uint) {
	for line := start >> lineBits; line <= end>>lineBits; line++ {
		cpu.CacheLine(op, line<<lineBits)
	}
}

// cacheRange performs op on every line of [start, end] and waits for
// completion.
func cacheRange(cpu ring0.CPU, op ring0.LineOp, start, end hostarch.VAddr, lineBits uint) {
	lineRange(cpu, op, start, end, lineBits)
	cpu.Barrier(ring0.DSB)
}

// invalidateEdges writes back the partial lines at either end of [start,
// end] so that invalidating them loses no data outside the range.
func invalidateEdges(cpu ring0.CPU, start, end hostarch.VAddr, lineBits uint) {
	mask := hostarch.VAddr(1)<<lineBits - 1
	if start&mask != 0 {
		cpu.CacheLine(ring0.CleanInvalidate, start&^mask)
	}
	if (end+1)&mask != 0 {
		cpu.CacheLine(ring0.CleanInvalidate, end&^mask)
	}
	cpu.Barrier(ring0.DSB)
}

// unifyInstruction makes instructions written to [start, end] visible to
// instruction fetch.
func unifyInstruction(cpu ring0.CPU, start, end hostarch.VAddr, lineBits uint) {
	cacheRange(cpu, ring0.CleanPoU, start, end, lineBits)
	lineRange(cpu, ring0.InvalidateI, start, end, lineBits)
	cpu.Barrier(ring0.DSB)
	cpu.Barrier(ring0.ISB)
}

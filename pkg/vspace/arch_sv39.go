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

//go:build riscv64 || sv39

package vspace

import (
	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/pagetables"
	"vspace.dev/vspace/pkg/ring0"
)

// syncTableWrite orders a table entry write before later walks and flushes
// stale translations on every processor.
func (c *Core) syncTableWrite(hostarch.VAddr) {
	c.cpu.Barrier(ring0.FenceRW)
	c.cpu.InvalidateTLB()
	c.broadcast(func(o ring0.CPU) {
		o.InvalidateTLB()
	})
}

// writeUserRoot programs satp. The register is shared with the kernel,
// whose window is mapped in every root.
func writeUserRoot(cpu ring0.CPU, a asid.ASID, root hostarch.PAddr) {
	cpu.SetUserRoot(pagetables.RootRegister(uint16(a), root))
	cpu.InvalidateTLB()
}

// activateKernel programs satp with the kernel root.
func (c *Core) activateKernel() {
	writeUserRoot(c.cpu, asid.Invalid, c.k.window.RootPhysical())
}

func invalidateTLBAll(cpu ring0.CPU) {
	cpu.InvalidateTLB()
}

func invalidateTLBASID(cpu ring0.CPU, a asid.ASID) {
	cpu.InvalidateTLBASID(a)
}

func invalidateTLBVA(cpu ring0.CPU, a asid.ASID, addr hostarch.VAddr) {
	cpu.InvalidateTLBVA(a, addr)
}

// Data caches are coherent: range maintenance only orders memory.
func cacheRange(cpu ring0.CPU, _ ring0.LineOp, _, _ hostarch.VAddr, _ uint) {
	cpu.Barrier(ring0.FenceRW)
}

func invalidateEdges(ring0.CPU, hostarch.VAddr, hostarch.VAddr, uint) {}

func unifyInstruction(cpu ring0.CPU, _, _ hostarch.VAddr, _ uint) {
	cpu.Barrier(ring0.FenceI)
}

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
	"vspace.dev/vspace/pkg/ring0"
)

// InvalidateTLB drops every translation of a, on every processor.
func (c *Core) InvalidateTLB(a asid.ASID) {
	invalidateTLBASID(c.cpu, a)
	c.broadcast(func(o ring0.CPU) {
		invalidateTLBASID(o, a)
	})
}

// InvalidateTLBVA drops the translation of addr in a, on every processor.
func (c *Core) InvalidateTLBVA(a asid.ASID, addr hostarch.VAddr) {
	invalidateTLBVA(c.cpu, a, addr)
	c.broadcast(func(o ring0.CPU) {
		invalidateTLBVA(o, a, addr)
	})
}

// InvalidateTLBAll drops every translation, on every processor.
func (c *Core) InvalidateTLBAll() {
	invalidateTLBAll(c.cpu)
	c.broadcast(invalidateTLBAll)
}

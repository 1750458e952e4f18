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
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/platform"
)

// AddKernelDevice maps d into the device window of the kernel address space.
// Frames that are not user available are reserved.
func (c *Core) AddKernelDevice(d platform.DeviceFrame) error {
	s, err := c.k.window.AddDevice(d, c.k.reserver)
	if err != nil {
		return err
	}
	c.syncSlot(s)
	log.Debugf("cpu%d: device frame %q: %v -> %v", c.ID(), d.Name, d.VAddr, d.PAddr)
	return nil
}

// RemoveKernelDevice unmaps the device frame at addr and drops its global
// translation on every processor. It returns false if no device is mapped
// there.
func (c *Core) RemoveKernelDevice(addr hostarch.VAddr) bool {
	s, ok := c.k.window.RemoveDevice(addr, c.k.reserver)
	if !ok {
		return false
	}
	if !s.IsZero() {
		c.syncSlot(s)
		c.InvalidateTLBVA(asid.Invalid, addr)
	}
	log.Debugf("cpu%d: device frame at %v removed", c.ID(), addr)
	return true
}

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
	"vspace.dev/vspace/pkg/pagetables"
)

// SetActiveUserRoot installs the root named by vc on this processor.
//
// If vc is not a bound root, or names a root that is no longer bound to its
// ASID, the default user root is installed instead. That is not an error,
// since a thread may briefly run with a revoked address space. Only a failed
// ASID lookup is reported, as a LookupFault.
func (c *Core) SetActiveUserRoot(vc Cap) error {
	root, ok := vc.(RootCap)
	if !ok || !root.Mapped {
		c.installDefaultUserRoot()
		return nil
	}
	bound, err := c.k.asids.Lookup(root.ASID)
	if err != nil {
		c.k.stale.Warningf("cpu%d: %v has no root, using the default user root", c.ID(), root.ASID)
		c.installDefaultUserRoot()
		return &LookupFault{Type: FaultInvalidRoot}
	}
	if bound != root.Base {
		c.k.stale.Warningf("cpu%d: %v is bound to %v, not %v, using the default user root", c.ID(), root.ASID, bound, root.Base)
		c.installDefaultUserRoot()
		return nil
	}
	writeUserRoot(c.cpu, root.ASID, root.Base)
	return nil
}

func (c *Core) installDefaultUserRoot() {
	writeUserRoot(c.cpu, asid.Invalid, c.k.window.UserRootPhysical())
}

// ActivateKernel installs the kernel window on this processor. It runs at
// boot and whenever the kernel window tables are replaced.
func (c *Core) ActivateKernel() {
	c.activateKernel()
}

// ActiveUserRoot returns the ASID and root currently installed for user
// translations.
func (c *Core) ActiveUserRoot() (asid.ASID, hostarch.PAddr) {
	a, root := pagetables.SplitRootRegister(c.cpu.UserRoot())
	return asid.ASID(a), root
}

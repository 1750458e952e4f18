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

	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/log"
)

// FindVSpace returns the root bound to a, or a LookupFault.
func (c *Core) FindVSpace(a asid.ASID) (hostarch.PAddr, error) {
	_, root, err := c.k.findRoot(a)
	return root, err
}

// BindASID binds root to a and returns the updated capability.
func (c *Core) BindASID(a asid.ASID, root RootCap) (RootCap, error) {
	if err := c.k.asids.Bind(a, root.Base); err != nil {
		return root, fmt.Errorf("binding %v to %v: %w", root.Base, a, err)
	}
	root.ASID = a
	root.Mapped = true
	log.Debugf("cpu%d: %v bound to %v", c.ID(), a, root.Base)
	return root, nil
}

// UnbindASID clears a's binding if it is root. It returns false if a was
// bound to something else.
func (c *Core) UnbindASID(a asid.ASID, root hostarch.PAddr) bool {
	return c.k.asids.Unbind(a, root)
}

// DeleteASID tears down a's binding to root: its translations are flushed
// everywhere, the binding is cleared and current is reactivated, since it
// may have been the deleted address space.
func (c *Core) DeleteASID(a asid.ASID, root hostarch.PAddr, current Cap) {
	bound, err := c.k.asids.Lookup(a)
	if err != nil || bound != root {
		return
	}
	c.InvalidateTLB(a)
	c.k.asids.Unbind(a, root)
	c.SetActiveUserRoot(current)
}

// InstallPool installs pool for the ASIDs starting at base.
func (c *Core) InstallPool(base asid.ASID, pool *asid.Pool) (PoolCap, error) {
	if base.Low() != 0 {
		return PoolCap{}, ErrAlignment
	}
	if err := c.k.asids.InstallPool(base.High(), pool); err != nil {
		return PoolCap{}, err
	}
	return PoolCap{Base: base, Pool: pool}, nil
}

// DeleteASIDPool removes pool, if it is still installed for base, after
// flushing the translations of every ASID it binds. current is
// reactivated afterwards.
func (c *Core) DeleteASIDPool(base asid.ASID, pool *asid.Pool, current Cap) {
	if base.Low() != 0 || c.k.asids.Pool(base.High()) != pool {
		return
	}
	for low := 0; low < asid.PoolSize; low++ {
		if pool.Load(low) != 0 {
			c.InvalidateTLB(base + asid.ASID(low))
		}
	}
	c.k.asids.RemovePool(base.High(), pool)
	c.SetActiveUserRoot(current)
}

// FindFreeASID returns an unbound ASID from an installed pool.
func (c *Core) FindFreeASID() (asid.ASID, bool) {
	for i := 0; i < asid.NumPools; i++ {
		if p := c.k.asids.Pool(i); p != nil {
			if a, ok := p.FindFree(asid.Base(i)); ok {
				return a, true
			}
		}
	}
	return asid.Invalid, false
}

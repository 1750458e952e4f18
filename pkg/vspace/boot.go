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
	"vspace.dev/vspace/pkg/pagetables"
)

// The functions below build the initial task's address space. They run on
// the boot processor before any other operation and take no locks. Each one
// creates a capability and immediately applies it, so the capability and
// the page tables agree.

// CreateRootCap allocates the initial task's root, mapped at a.
func (c *Core) CreateRootCap(a asid.ASID) (RootCap, error) {
	root, err := c.k.NewRoot()
	if err != nil {
		return RootCap{}, err
	}
	root.ASID = a
	root.Mapped = true
	return root, nil
}

// CreateTableCap allocates a table and links it below root for addr.
func (c *Core) CreateTableCap(root RootCap, addr hostarch.VAddr) (TableCap, error) {
	table, err := c.k.NewTable()
	if err != nil {
		return TableCap{}, err
	}
	table.MappedAddr = addr
	table.ASID = root.ASID
	table.Mapped = true
	if err := c.MapTable(root, table); err != nil {
		c.k.alloc.FreePTEs(c.k.table(table.Base))
		return TableCap{}, fmt.Errorf("linking boot table for %v: %w", addr, err)
	}
	return table, nil
}

// CreateTableCaps links tables below root until every address of [start,
// end) can be mapped with frames of the given size.
func (c *Core) CreateTableCaps(root RootCap, start, end hostarch.VAddr, size pagetables.PageSize) ([]TableCap, error) {
	want := size.Bits()
	span := hostarch.VAddr(1)<<(want+9) - 1
	var tables []TableCap
	for addr := start; addr < end; {
		_, bitsLeft := pagetables.LookupSlot(c.k.alloc, c.k.table(root.Base), addr)
		if bitsLeft <= want {
			next := (addr | span) + 1
			if next <= addr {
				break
			}
			addr = next
			continue
		}
		t, err := c.CreateTableCap(root, addr)
		if err != nil {
			return tables, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func frameSize(large bool) pagetables.PageSize {
	if large {
		return pagetables.LargePage
	}
	return pagetables.SmallPage
}

// CreateMappedFrameCap maps the frame at physical at addr below root,
// read-write for the initial task.
func (c *Core) CreateMappedFrameCap(root RootCap, physical hostarch.PAddr, addr hostarch.VAddr, a asid.ASID, large, executable bool) (FrameCap, error) {
	frame := FrameCap{
		Base:       physical,
		Size:       frameSize(large),
		Rights:     pagetables.ReadWrite,
		MappedAddr: addr,
		ASID:       a,
		Mapped:     true,
	}
	if err := c.MapPage(root, frame, executable); err != nil {
		return FrameCap{}, fmt.Errorf("mapping boot frame %v at %v: %w", physical, addr, err)
	}
	return frame, nil
}

// CreateUnmappedFrameCap returns a capability to the frame at physical.
func (c *Core) CreateUnmappedFrameCap(physical hostarch.PAddr, large bool) FrameCap {
	return FrameCap{
		Base:   physical,
		Size:   frameSize(large),
		Rights: pagetables.ReadWrite,
	}
}

// WriteInitialASIDPool installs pool and binds root in it.
func (c *Core) WriteInitialASIDPool(pool PoolCap, root RootCap) error {
	if _, err := c.InstallPool(pool.Base, pool.Pool); err != nil {
		return fmt.Errorf("installing the initial ASID pool: %w", err)
	}
	if _, err := c.BindASID(root.ASID, root); err != nil {
		return err
	}
	return nil
}

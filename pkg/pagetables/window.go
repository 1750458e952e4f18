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

package pagetables

import (
	"fmt"

	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/log"
	"vspace.dev/vspace/pkg/platform"
)

// Reserver marks physical ranges as unavailable to the physical memory
// allocator.
type Reserver interface {
	// Reserve reserves [start, end). It returns false if the range could
	// not be reserved.
	Reserve(start, end hostarch.PAddr) bool

	// Release drops the reservation starting at start. It returns false if
	// there is none.
	Release(start hostarch.PAddr) bool
}

// KernelWindow is the always resident kernel address space.
//
// Its tables are statically placed in the kernel image. They are populated
// once by Map and afterwards only change when device frames are added or
// removed.
type KernelWindow struct {
	Layout

	alloc   StaticAllocator
	smp     bool
	devices []platform.DeviceFrame
	mapped  bool
	tables  *kernelTables
}

// NewKernelWindow places the static kernel tables of p and registers them
// with alloc. The tables are empty until Map is called.
func NewKernelWindow(p *platform.Platform, alloc StaticAllocator) (*KernelWindow, error) {
	w := &KernelWindow{
		Layout:  NewLayout(p),
		alloc:   alloc,
		smp:     p.SMP(),
		devices: append([]platform.DeviceFrame(nil), p.Devices...),
		tables:  new(kernelTables),
	}
	if err := w.checkLayout(); err != nil {
		return nil, err
	}
	for _, d := range w.devices {
		if err := w.checkDevice(d); err != nil {
			return nil, err
		}
	}

	all := w.tables.all()
	end := w.PageTableBase + hostarch.VAddr(len(all)*hostarch.PageSize)
	if end > w.KernelELFTop() {
		return nil, fmt.Errorf("%d kernel tables at %v overrun the kernel image ending at %v", len(all), w.PageTableBase, w.KernelELFTop())
	}
	for i, t := range all {
		alloc.Adopt(w.KpptrToPaddr(w.PageTableBase+hostarch.VAddr(i*hostarch.PageSize)), t)
	}
	return w, nil
}

// Map populates the kernel window: the direct map of all physical memory, the
// kernel image alias and the device frames. Device frames that are not user
// available are reserved with r.
//
// Map may only be called once.
func (w *KernelWindow) Map(r Reserver) {
	if w.mapped {
		panic("kernel window mapped twice")
	}
	w.mapped = true

	w.mapWindow()
	log.Infof("Kernel window: direct map %v-%v -> %v-%v, image %v-%v -> %v", PPTRBase, PPTRTop, w.PAddrBase, w.PAddrTop, w.KernelELFPAddrBase, w.KernelELFPAddrTop, w.KernelELFBase)
	for _, d := range w.devices {
		w.mapDevice(d)
		if !d.UserAvailable && !r.Reserve(d.PAddr, d.PAddr+hostarch.PageSize) {
			log.Warningf("Device frame %q at %v could not be reserved", d.Name, d.PAddr)
		}
		log.Debugf("Device frame %q: %v -> %v", d.Name, d.VAddr, d.PAddr)
	}
}

// Mapped returns true once Map has run.
func (w *KernelWindow) Mapped() bool {
	return w.mapped
}

// AddDevice maps an additional device frame and returns the slot it wrote.
// The caller makes the write visible to the table walkers.
func (w *KernelWindow) AddDevice(d platform.DeviceFrame, r Reserver) (Slot, error) {
	if err := w.checkDevice(d); err != nil {
		return Slot{}, err
	}
	for _, o := range w.devices {
		if o.VAddr == d.VAddr {
			return Slot{}, fmt.Errorf("device window address %v already used by %q", d.VAddr, o.Name)
		}
	}
	if !d.UserAvailable && !r.Reserve(d.PAddr, d.PAddr+hostarch.PageSize) {
		return Slot{}, fmt.Errorf("device frame %v is already reserved", d.PAddr)
	}
	w.devices = append(w.devices, d)
	return w.mapDevice(d), nil
}

// RemoveDevice unmaps the device frame at addr and releases its reservation.
// It returns false if there is none. The returned slot is the one cleared,
// or is zero if it still maps another device. The caller synchronises it
// and invalidates the stale translation.
func (w *KernelWindow) RemoveDevice(addr hostarch.VAddr, r Reserver) (Slot, bool) {
	for i, d := range w.devices {
		if d.VAddr != addr {
			continue
		}
		w.devices = append(w.devices[:i], w.devices[i+1:]...)
		s := w.unmapDevice(d)
		if !d.UserAvailable && !r.Release(d.PAddr) {
			log.Warningf("Device frame %q at %v was not reserved", d.Name, d.PAddr)
		}
		return s, true
	}
	return Slot{}, false
}

// Devices returns the mapped device frames.
func (w *KernelWindow) Devices() []platform.DeviceFrame {
	return append([]platform.DeviceFrame(nil), w.devices...)
}

// Allocator returns the allocator resolving the window's tables.
func (w *KernelWindow) Allocator() StaticAllocator {
	return w.alloc
}

// Root returns the kernel root table.
func (w *KernelWindow) Root() *PTEs {
	return w.tables.root()
}

// RootPhysical returns the physical address of the kernel root table.
func (w *KernelWindow) RootPhysical() hostarch.PAddr {
	return w.alloc.PhysicalFor(w.Root())
}

// UserRoot returns the root installed for threads without a valid address
// space.
func (w *KernelWindow) UserRoot() *PTEs {
	return w.tables.userRoot()
}

// UserRootPhysical returns the physical address of UserRoot.
func (w *KernelWindow) UserRootPhysical() hostarch.PAddr {
	return w.alloc.PhysicalFor(w.UserRoot())
}

// Translate resolves addr through the kernel root.
func (w *KernelWindow) Translate(addr hostarch.VAddr) (hostarch.PAddr, Decoded, uint, bool) {
	return Translate(w.alloc, w.Root(), addr)
}

func (w *KernelWindow) windowAttrs() Attrs {
	return Attrs{
		Rights:     KernelOnly,
		Executable: true,
		MemoryType: hostarch.MemoryTypeWriteBack,
		Shareable:  w.smp,
		Global:     true,
	}
}

func (w *KernelWindow) deviceAttrs(d platform.DeviceFrame) Attrs {
	attrs := Attrs{
		Rights:     KernelOnly,
		Executable: d.Executable,
		MemoryType: hostarch.MemoryTypeUncached,
		Global:     true,
	}
	if d.Cacheable {
		attrs.MemoryType = hostarch.MemoryTypeWriteBack
		attrs.Shareable = w.smp
	}
	return attrs
}

func (w *KernelWindow) physical(t *PTEs) hostarch.PAddr {
	return w.alloc.PhysicalFor(t)
}

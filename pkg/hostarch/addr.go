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

package hostarch

import (
	"fmt"
	"strconv"
)

// VAddr is a virtual address.
type VAddr uint64

// PAddr is a physical address.
//
// There is no implicit conversion between the two; see the window
// conversions in package pagetables.
type PAddr uint64

// RoundDown returns the address rounded down to the nearest page boundary.
func (v VAddr) RoundDown() VAddr {
	return v & ^VAddr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v VAddr) RoundUp() (addr VAddr, ok bool) {
	addr = VAddr(v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// HugeRoundDown returns the address rounded down to the nearest huge page
// boundary.
func (v VAddr) HugeRoundDown() VAddr {
	return v & ^VAddr(HugePageSize-1)
}

// PageOffset returns the offset of v into the current page.
func (v VAddr) PageOffset() uint64 {
	return uint64(v & (PageSize - 1))
}

// IsPageAligned returns true if v.PageOffset() == 0.
func (v VAddr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of VAddr.
func (v VAddr) AddLength(length uint64) (end VAddr, ok bool) {
	end = v + VAddr(length)
	ok = end >= v
	return
}

// String implements fmt.Stringer.String.
func (v VAddr) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// MarshalText implements encoding.TextMarshaler.
func (v VAddr) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts any integer
// literal understood by strconv.ParseUint with base 0.
func (v *VAddr) UnmarshalText(b []byte) error {
	n, err := parseAddr(b)
	if err != nil {
		return err
	}
	*v = VAddr(n)
	return nil
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (p PAddr) RoundDown() PAddr {
	return p & ^PAddr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (p PAddr) RoundUp() (addr PAddr, ok bool) {
	addr = PAddr(p + PageSize - 1).RoundDown()
	ok = addr >= p
	return
}

// IsPageAligned returns true if p is a multiple of PageSize.
func (p PAddr) IsPageAligned() bool {
	return p&(PageSize-1) == 0
}

// String implements fmt.Stringer.String.
func (p PAddr) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p PAddr) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PAddr) UnmarshalText(b []byte) error {
	n, err := parseAddr(b)
	if err != nil {
		return err
	}
	*p = PAddr(n)
	return nil
}

func parseAddr(b []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(b), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", b, err)
	}
	return n, nil
}

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
	"errors"
	"fmt"
)

// FaultType is the reason for a LookupFault.
type FaultType uint8

const (
	// FaultInvalidRoot is reported when an ASID has no bound root.
	FaultInvalidRoot FaultType = iota

	// FaultMissingCapability is reported when a walk stops above the
	// level the operation needs. BitsLeft says where it stopped.
	FaultMissingCapability
)

// String implements fmt.Stringer.String.
func (t FaultType) String() string {
	switch t {
	case FaultInvalidRoot:
		return "invalid root"
	case FaultMissingCapability:
		return "missing capability"
	default:
		return fmt.Sprintf("FaultType(%d)", t)
	}
}

// LookupFault is a recoverable failure to resolve an address space or a
// table. It is returned to the caller, which reports it to whoever invoked
// the operation.
type LookupFault struct {
	Type FaultType

	// BitsLeft is the number of unresolved address bits for
	// FaultMissingCapability.
	BitsLeft uint
}

// Error implements error.Error.
func (f *LookupFault) Error() string {
	if f.Type == FaultMissingCapability {
		return fmt.Sprintf("lookup fault: %v with %d bits left", f.Type, f.BitsLeft)
	}
	return fmt.Sprintf("lookup fault: %v", f.Type)
}

var (
	// ErrDeleteFirst is returned when a table would replace a valid entry
	// or be linked at the last level.
	ErrDeleteFirst = errors.New("slot in use, delete first")

	// ErrRange is returned when a maintenance range does not fit its
	// frame.
	ErrRange = errors.New("range outside the frame")

	// ErrAlignment is returned for misaligned pools and mappings.
	ErrAlignment = errors.New("misaligned argument")
)

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

package ring0

import (
	"fmt"
	"sync"

	"vspace.dev/vspace/pkg/asid"
	"vspace.dev/vspace/pkg/hostarch"
)

// Op identifies a recorded primitive.
type Op uint8

const (
	OpSetKernelRoot Op = iota
	OpSetUserRoot
	OpBarrier
	OpInvalidateTLB
	OpInvalidateTLBASID
	OpInvalidateTLBVA
	OpCacheLine
	OpCleanInvalidateL1
	OpInvalidateICache
	OpOuterClean
	OpOuterInvalidate
	OpOuterCleanInvalidate
	OpIPI
)

var opNames = [...]string{
	OpSetKernelRoot:        "set-kernel-root",
	OpSetUserRoot:          "set-user-root",
	OpBarrier:              "barrier",
	OpInvalidateTLB:        "tlbi-all",
	OpInvalidateTLBASID:    "tlbi-asid",
	OpInvalidateTLBVA:      "tlbi-va",
	OpCacheLine:            "cache-line",
	OpCleanInvalidateL1:    "clean-invalidate-l1",
	OpInvalidateICache:     "invalidate-icache",
	OpOuterClean:           "outer-clean",
	OpOuterInvalidate:      "outer-invalidate",
	OpOuterCleanInvalidate: "outer-clean-invalidate",
	OpIPI:                  "ipi",
}

// String implements fmt.Stringer.String.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Event is one recorded primitive.
//
// Value holds the register value for root writes, the Barrier or LineOp for
// barriers and line operations, and the end of the range for outer cache
// operations.
type Event struct {
	CPU   int
	Op    Op
	ASID  asid.ASID
	VAddr hostarch.VAddr
	PAddr hostarch.PAddr
	Value uint64
}

// String implements fmt.Stringer.String.
func (e Event) String() string {
	switch e.Op {
	case OpSetKernelRoot, OpSetUserRoot:
		return fmt.Sprintf("cpu%d %v %#x", e.CPU, e.Op, e.Value)
	case OpBarrier:
		return fmt.Sprintf("cpu%d %v", e.CPU, Barrier(e.Value))
	case OpInvalidateTLBASID:
		return fmt.Sprintf("cpu%d %v %v", e.CPU, e.Op, e.ASID)
	case OpInvalidateTLBVA:
		return fmt.Sprintf("cpu%d %v %v %v", e.CPU, e.Op, e.ASID, e.VAddr)
	case OpCacheLine:
		return fmt.Sprintf("cpu%d %v %v", e.CPU, LineOp(e.Value), e.VAddr)
	case OpOuterClean, OpOuterInvalidate, OpOuterCleanInvalidate:
		return fmt.Sprintf("%v [%v, %#x]", e.Op, e.PAddr, e.Value)
	default:
		return fmt.Sprintf("cpu%d %v", e.CPU, e.Op)
	}
}

// trace is an ordered log of events.
type trace struct {
	mu     sync.Mutex
	events []Event
}

func (t *trace) record(e Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

func (t *trace) snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

func (t *trace) reset() {
	t.mu.Lock()
	t.events = nil
	t.mu.Unlock()
}

// Filter returns the events satisfying keep.
func Filter(events []Event, keep func(Event) bool) []Event {
	var out []Event
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// OnCPU returns a predicate for Filter keeping events of one processor.
func OnCPU(id int) func(Event) bool {
	return func(e Event) bool { return e.CPU == id }
}

// WithOp returns a predicate for Filter keeping events of the given kinds.
func WithOp(ops ...Op) func(Event) bool {
	return func(e Event) bool {
		for _, op := range ops {
			if e.Op == op {
				return true
			}
		}
		return false
	}
}

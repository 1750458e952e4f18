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

package pagetables

import (
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/platform"
)

// Kernel window constants.
const (
	// PPTRBase is the start of the direct map.
	PPTRBase hostarch.VAddr = 0xffffffc000000000

	// PPTRTop is the end of the direct map. The GiB above it holds the
	// kernel image alias.
	PPTRTop hostarch.VAddr = 0xffffffff80000000

	// KDevBase is the start of the device window, the last GiB.
	KDevBase hostarch.VAddr = 0xffffffffc0000000

	// UserTop is the end of the user half.
	UserTop hostarch.VAddr = 0x0000003fffffffff

	// kernelELFAlign is the granule of the kernel image alias.
	kernelELFAlign = hostarch.GiantPageSize
)

// The direct map always starts at physical zero.
func directMapPAddrBase(*platform.Platform) hostarch.PAddr {
	return 0
}

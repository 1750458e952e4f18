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

//go:build !riscv64 && !sv39

package pagetables

import (
	"vspace.dev/vspace/pkg/hostarch"
	"vspace.dev/vspace/pkg/platform"
)

// Kernel window constants.
const (
	// PPTRBase is the start of the direct map.
	PPTRBase hostarch.VAddr = 0xffffff8000000000

	// PPTRTop is the end of the direct map. The last GiB holds the kernel
	// image alias and the device window.
	PPTRTop hostarch.VAddr = 0xffffffffc0000000

	// KDevBase is the start of the device window.
	KDevBase hostarch.VAddr = 0xffffffffffe00000

	// UserTop is the end of the user half.
	UserTop hostarch.VAddr = 0x0000ffffffffffff

	// kernelELFAlign is the granule of the kernel image alias.
	kernelELFAlign = hostarch.HugePageSize
)

// The direct map starts at the first byte of RAM.
func directMapPAddrBase(p *platform.Platform) hostarch.PAddr {
	return p.PhysBase
}

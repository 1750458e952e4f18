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

package platform

// Default returns the description of a QEMU virt board with an aarch64
// processor.
func Default() *Platform {
	return &Platform{
		Name:            "virt",
		PhysBase:        0x40000000,
		PhysTop:         0x80000000,
		KernelELFPAddr:  0x40000000,
		KernelImageSize: 0x400000,
		PageTableOffset: 0x100000,
		Cores:           4,
		L1CacheLineBits: 6,
		Devices: []DeviceFrame{
			{Name: "uart", PAddr: 0x09000000, VAddr: 0xffffffffffe00000},
			{Name: "gicd", PAddr: 0x08000000, VAddr: 0xffffffffffe01000},
			{Name: "gicc", PAddr: 0x08010000, VAddr: 0xffffffffffe02000},
			{Name: "rtc", PAddr: 0x09010000, VAddr: 0xffffffffffe03000, UserAvailable: true},
		},
	}
}

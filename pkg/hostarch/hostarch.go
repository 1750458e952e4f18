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

// Package hostarch describes the address types and page geometry of the
// translation hardware driven by this module.
package hostarch

const (
	// PageShift is the binary log of the base page size.
	PageShift = 12

	// PageSize is the base page size.
	PageSize = 1 << PageShift

	// HugePageShift is the binary log of the second level block size.
	HugePageShift = 21

	// HugePageSize is the second level block size (2MiB).
	HugePageSize = 1 << HugePageShift

	// GiantPageShift is the binary log of the third level block size.
	GiantPageShift = 30

	// GiantPageSize is the third level block size (1GiB).
	GiantPageSize = 1 << GiantPageShift
)

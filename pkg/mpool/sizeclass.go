// Copyright 2025 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mpool

import (
	"math/bits"
)

// sizeClass returns the class index and cell size for a pooled
// request, 0 < sz < maxPool.  The cell is the smallest power of two
// strictly greater than sz, clamped up to minPool; a request of
// exactly 2^k rounds to 2^(k+1).  Alloc and Repool share this rule,
// so any size that rounds to the same class frees correctly.
func (ps *PoolSet) sizeClass(sz int) (idx int, cellSize int) {
	k := bits.Len(uint(sz))
	if k < ps.minShift {
		k = ps.minShift
	}
	return k - ps.minShift, 1 << k
}

// iceil2 is the base-2 integer ceiling, 'clp2' in Hacker's Delight.
func iceil2(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(x-1))
}

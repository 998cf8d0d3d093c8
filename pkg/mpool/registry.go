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
	"unsafe"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

// MetaAllocator provides the registry's parallel backing arrays.  It
// is the bookkeeping seam, separate from the Mapper that backs the
// regions themselves: GrowRegistry is called once at New with nil
// inputs and again on every capacity doubling.  Implementations must
// return arrays of exactly newCap entries holding the old contents.
type MetaAllocator interface {
	GrowRegistry(data [][]byte, cellSizes []int, newCap int) ([][]byte, []int, error)
}

// goMetaAllocator backs the registry with plain Go slices.  It never
// fails; tests swap in failing implementations to exercise the growth
// error path.
type goMetaAllocator struct{}

func (goMetaAllocator) GrowRegistry(data [][]byte, cellSizes []int, newCap int) ([][]byte, []int, error) {
	nd := make([][]byte, newCap)
	copy(nd, data)
	ns := make([]int, newCap)
	copy(ns, cellSizes)
	return nd, ns, nil
}

// regionSet records every region the pool set has mapped: parallel
// arrays of the exact Map results and their cell sizes, used count ct,
// capacity pal (a power of two).  A nil data entry is a hole left by a
// repooled large block; teardown skips holes.
type regionSet struct {
	data      [][]byte
	cellSizes []int
	ct        int
	pal       int
}

// add appends (region, cellSize), doubling both arrays through the
// meta allocator when full.  On growth failure the registry keeps its
// prior state and the append reports the failure.
func (r *regionSet) add(meta MetaAllocator, region []byte, cellSize int) error {
	if r.ct == r.pal {
		newPal := r.pal * 2
		nd, ns, err := meta.GrowRegistry(r.data, r.cellSizes, newPal)
		if err != nil {
			return moerr.NewOOM("region registry grow to %d entries: %v", newPal, err)
		}
		r.data = nd
		r.cellSizes = ns
		r.pal = newPal
	}
	r.data[r.ct] = region
	r.cellSizes[r.ct] = cellSize
	r.ct++
	return nil
}

// findBase returns the index of the live entry whose region starts at
// p, or -1.
func (r *regionSet) findBase(p unsafe.Pointer) int {
	for i := 0; i < r.ct; i++ {
		if r.data[i] != nil && base(r.data[i]) == p {
			return i
		}
	}
	return -1
}

func (r *regionSet) clear(i int) {
	r.data[i] = nil
}

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

	"go.uber.org/zap"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

// mapRegion obtains n bytes from the mapper, honoring the capacity cap.
func (ps *PoolSet) mapRegion(n int) ([]byte, error) {
	if err := ps.checkCapacity(n); err != nil {
		return nil, err
	}
	region, err := ps.mapper.Map(n)
	if err != nil {
		return nil, err
	}
	ps.stats.NumRegionMap.Add(1)
	ps.stats.MappedBytes.Add(int64(len(region)))
	if ps.trace {
		ps.logger.Debug("region mapped", zap.Int("bytes", len(region)))
	}
	return region, nil
}

// unmapRegion releases a mapping and keeps the teardown going on
// error, which is only ever reported, never fatal.
func (ps *PoolSet) unmapRegion(region []byte) error {
	n := len(region)
	if err := ps.mapper.Unmap(region); err != nil {
		ps.logger.Error("munmap failed", zap.Int("bytes", n), zap.Error(err))
		return err
	}
	ps.stats.NumRegionUnmap.Add(1)
	ps.stats.UnmappedBytes.Add(int64(n))
	if ps.trace {
		ps.logger.Debug("region unmapped", zap.Int("bytes", n))
	}
	return nil
}

// newRegion maps a region for cells of cellSize bytes and threads the
// free list through it: each cell's first word points at the next
// cell, the last holds nil.  The region is max(cellSize, pageSize)
// bytes and carries floor(pageSize/cellSize) cells, or a single cell
// when cellSize exceeds the page.
func (ps *PoolSet) newRegion(cellSize int) ([]byte, error) {
	n := cellSize
	if n < ps.pageSize {
		n = ps.pageSize
	}
	region, err := ps.mapRegion(n)
	if err != nil {
		return nil, err
	}
	b := base(region)
	lim := ps.pageSize / cellSize
	for i := 1; i < lim; i++ {
		setNextFree(unsafe.Add(b, (i-1)*cellSize), unsafe.Add(b, i*cellSize))
	}
	last := 0
	if lim > 0 {
		last = lim - 1
	}
	setNextFree(unsafe.Add(b, last*cellSize), nil)
	return region, nil
}

func (ps *PoolSet) checkCapacity(n int) error {
	if ps.capacity <= 0 {
		return nil
	}
	live := ps.stats.MappedBytes.Load() - ps.stats.UnmappedBytes.Load()
	if live+int64(n) > ps.capacity {
		return moerr.NewOOM("pool capacity %d bytes, %d live, need %d", ps.capacity, live, n)
	}
	return nil
}

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

// Package mpool is a segregated-fit pool allocator for callers that
// allocate and release fixed-ish sized blocks in amortized O(1) time.
//
// Blocks come from power-of-two size classes.  Each class threads an
// intrusive free list through the first word of its free cells, so
// the bookkeeping costs no memory beyond the cells themselves.  A
// class maps its first page-sized region on first use and chains
// further regions on exhaustion; nothing is returned to the OS until
// FreeAll.  Requests of MaxPool bytes or more bypass the pools: they
// are mapped whole and unmapped on Repool.
//
// Alloc never zeroes memory.  A recycled cell still carries the bytes
// the previous owner wrote, including the free-list link in its first
// word.
package mpool

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
	"github.com/matrixorigin/mpool/pkg/logutil"
	"github.com/matrixorigin/mpool/pkg/osmem"
)

// New builds a PoolSet with cell classes 2^minShift .. 2^maxShift.
// Nothing is mapped until the first Alloc.
func New(minShift, maxShift int, opts ...Option) (*PoolSet, error) {
	if minShift <= 0 || minShift >= maxShift {
		return nil, moerr.NewBadConfig("pool shifts %d..%d", minShift, maxShift)
	}
	if maxShift > maxShiftLimit {
		return nil, moerr.NewBadConfig("max shift %d exceeds limit %d", maxShift, maxShiftLimit)
	}
	if (1 << minShift) <= linkWordSize {
		return nil, moerr.NewBadConfig("min cell %d bytes cannot hold a %d byte free link", 1<<minShift, linkWordSize)
	}

	var opt options
	for _, o := range opts {
		o(&opt)
	}
	if opt.mapper == nil {
		opt.mapper = osmem.Sys()
	}
	if opt.meta == nil {
		opt.meta = goMetaAllocator{}
	}
	if opt.logger == nil {
		opt.logger = logutil.GetGlobalLogger()
	}

	classCount := maxShift - minShift + 1
	pal := iceil2(classCount)
	data, cellSizes, err := opt.meta.GrowRegistry(nil, nil, pal)
	if err != nil {
		return nil, moerr.NewOOM("region registry init with %d entries: %v", pal, err)
	}

	ps := &PoolSet{
		minShift: minShift,
		maxShift: maxShift,
		minPool:  1 << minShift,
		maxPool:  1 << maxShift,
		pageSize: opt.mapper.PageSize(),
		heads:    make([]unsafe.Pointer, classCount),
		regions:  regionSet{data: data, cellSizes: cellSizes, pal: pal},
		mapper:   opt.mapper,
		meta:     opt.meta,
		logger:   opt.logger,
		capacity: opt.capacity,
		trace:    opt.trace,
	}
	if opt.sanity {
		ps.sanity = newSanityChecker(ps.logger)
	}
	return ps, nil
}

// Alloc returns a block of sz bytes: len(block) == sz, and for pooled
// sizes cap(block) is the class cell size.  The block's contents are
// whatever the previous owner left there.  On failure the pool set is
// unchanged and stays usable.
func (ps *PoolSet) Alloc(sz int) ([]byte, error) {
	if ps.destroyed {
		return nil, moerr.NewInvalidState("alloc on destroyed pool set")
	}
	if sz <= 0 {
		return nil, moerr.NewInvalidInput("alloc size %d", sz)
	}
	if sz >= ps.maxPool {
		return ps.allocLarge(sz)
	}

	i, c := ps.sizeClass(sz)
	if ps.heads[i] == nil {
		// first touch of this class
		region, err := ps.buildPoolRegion(c)
		if err != nil {
			return nil, err
		}
		ps.heads[i] = base(region)
	}

	cur := ps.heads[i]
	next := nextFree(cur)
	if next == nil {
		// cur is the class's last free cell, chain a fresh region
		// through it before handing it out
		region, err := ps.buildPoolRegion(c)
		if err != nil {
			return nil, err
		}
		setNextFree(cur, base(region))
		next = nextFree(cur)
	}
	if ps.sanity != nil {
		ps.sanity.onAlloc(cur, next, c)
	}
	ps.heads[i] = next
	ps.stats.NumAlloc.Add(1)
	ps.stats.recordInuse(int64(c))
	return unsafe.Slice((*byte)(cur), c)[:sz], nil
}

// buildPoolRegion maps and registers a region for one size class.  The
// region becomes visible to the free list only after registration, so
// a registry failure leaves no trace beyond the map/unmap pair.
func (ps *PoolSet) buildPoolRegion(cellSize int) ([]byte, error) {
	region, err := ps.newRegion(cellSize)
	if err != nil {
		return nil, err
	}
	if err := ps.registerRegion(region, cellSize, false); err != nil {
		_ = ps.unmapRegion(region)
		return nil, err
	}
	return region, nil
}

func (ps *PoolSet) registerRegion(region []byte, cellSize int, large bool) error {
	if err := ps.regions.add(ps.meta, region, cellSize); err != nil {
		return err
	}
	if ps.sanity != nil {
		ps.sanity.onRegion(region, cellSize, large, ps.pageSize)
	}
	if ps.trace {
		ps.logger.Debug("region registered",
			zap.Int("cell", cellSize),
			zap.Bool("large", large),
			zap.Int("ct", ps.regions.ct),
			zap.Int("pal", ps.regions.pal))
	}
	return nil
}

func (ps *PoolSet) allocLarge(sz int) ([]byte, error) {
	region, err := ps.mapRegion(sz)
	if err != nil {
		return nil, err
	}
	if err := ps.registerRegion(region, sz, true); err != nil {
		_ = ps.unmapRegion(region)
		return nil, err
	}
	ps.stats.NumLargeAlloc.Add(1)
	ps.stats.recordInuse(int64(sz))
	return region, nil
}

// Repool hands a block back.  sz must be the size requested at Alloc,
// or any size that resolves to the same class.  Only the block's base
// pointer matters; len and cap of p are ignored.  Repooling with a
// size from a different class corrupts the free lists, which only the
// sanity checker detects.
func (ps *PoolSet) Repool(p []byte, sz int) {
	if ps.destroyed {
		ps.logger.Error("repool on destroyed pool set", zap.Int("size", sz))
		return
	}
	if p == nil {
		ps.logger.Error("repool of nil block", zap.Int("size", sz))
		return
	}
	if sz <= 0 {
		ps.logger.Error("repool with bad size", zap.Int("size", sz))
		return
	}
	if sz >= ps.maxPool {
		ps.repoolLarge(base(p), sz)
		return
	}

	i, c := ps.sizeClass(sz)
	cell := base(p)
	if ps.sanity != nil {
		ps.sanity.onRepool(cell, c)
	}
	setNextFree(cell, ps.heads[i])
	ps.heads[i] = cell
	ps.stats.NumFree.Add(1)
	ps.stats.recordRelease(int64(c))
}

// repoolLarge unmaps a large block and leaves a nil hole in the
// registry; teardown skips holes.
func (ps *PoolSet) repoolLarge(p unsafe.Pointer, sz int) {
	idx := ps.regions.findBase(p)
	if idx < 0 {
		// never mapped by this set, or already repooled; unmapping a
		// guessed length would be worse than the leak
		if ps.sanity != nil {
			ps.sanity.violation("repool of unknown large block",
				zap.Uintptr("base", uintptr(p)), zap.Int("size", sz))
		}
		ps.logger.Error("repool of unknown large block",
			zap.Uintptr("base", uintptr(p)), zap.Int("size", sz))
		return
	}
	region := ps.regions.data[idx]
	if ps.sanity != nil {
		ps.sanity.onLargeRepool(p)
	}
	_ = ps.unmapRegion(region)
	ps.regions.clear(idx)
	ps.stats.NumLargeFree.Add(1)
	ps.stats.recordRelease(int64(len(region)))
}

// Realloc grows or shrinks a block to newSz: a fresh Alloc, a copy of
// min(oldSz, newSz) bytes, then Repool of the old block.  On failure
// the old block is untouched.  A nil p with oldSz 0 is a plain Alloc.
func (ps *PoolSet) Realloc(p []byte, oldSz, newSz int) ([]byte, error) {
	r, err := ps.Alloc(newSz)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return r, nil
	}
	n := oldSz
	if newSz < n {
		n = newSz
	}
	if len(p) < n {
		n = len(p)
	}
	copy(r, p[:n])
	if oldSz > 0 {
		ps.Repool(p, oldSz)
	}
	return r, nil
}

// FreeAll returns every region to the OS, including still-live large
// blocks, and invalidates the pool set.  Unmap errors are logged and
// teardown continues.
func (ps *PoolSet) FreeAll() {
	if ps.destroyed {
		ps.logger.Error("free all on destroyed pool set")
		return
	}
	freed := 0
	for i := 0; i < ps.regions.ct; i++ {
		region := ps.regions.data[i]
		if region == nil {
			continue
		}
		_ = ps.unmapRegion(region)
		ps.regions.data[i] = nil
		freed++
	}
	for i := range ps.heads {
		ps.heads[i] = nil
	}
	ps.regions = regionSet{}
	if ps.sanity != nil {
		ps.sanity.reset()
	}
	ps.stats.InuseBytes.Store(0)
	ps.destroyed = true
	if ps.trace {
		ps.logger.Debug("pool set destroyed", zap.Int("regions", freed))
	}
}

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

	"github.com/matrixorigin/mpool/pkg/osmem"
)

// linkWordSize is the size of the next-free pointer stored in the
// first word of every free cell.  minPool must exceed it so the link
// always fits.
const linkWordSize = int(unsafe.Sizeof(unsafe.Pointer(nil)))

// maxShiftLimit bounds class sizes to 2^40 bytes.  Larger shifts are
// configuration mistakes, not workloads.
const maxShiftLimit = 40

// PoolSet is a segregated-fit pool allocator.  Cells come in
// power-of-two size classes 2^minShift .. 2^maxShift; each class keeps
// an intrusive free list threaded through the first word of its free
// cells.  Regions are mapped lazily, one page-sized chunk at a time,
// and only returned to the OS at FreeAll (large blocks excepted).
//
// A PoolSet is NOT safe for concurrent use.  It takes no locks; give
// each goroutine its own set.
type PoolSet struct {
	minShift int
	maxShift int
	minPool  int
	maxPool  int
	pageSize int

	// heads[i] points at the first free cell of class i, nil when the
	// class has no free cells (or was never touched).  The links live
	// in the mapped regions themselves; none of this memory is visible
	// to the GC.
	heads []unsafe.Pointer

	regions regionSet

	mapper   osmem.Mapper
	meta     MetaAllocator
	logger   *zap.Logger
	capacity int64
	trace    bool

	destroyed bool

	stats  Stats
	sanity *sanityChecker
}

type options struct {
	mapper   osmem.Mapper
	meta     MetaAllocator
	logger   *zap.Logger
	capacity int64
	sanity   bool
	trace    bool
}

type Option func(*options)

// WithMapper overrides the OS mapping primitive.  Tests use counting
// and failure-injecting mappers; the default is osmem.Sys().
func WithMapper(m osmem.Mapper) Option {
	return func(o *options) {
		o.mapper = m
	}
}

// WithMetaAllocator overrides how the registry's parallel arrays are
// grown.  The default never fails.
func WithMetaAllocator(m MetaAllocator) Option {
	return func(o *options) {
		o.meta = m
	}
}

// WithCapacity caps live mapped bytes.  An allocation that would push
// the total past n fails with an OOM error before any mapping is made.
// Zero means unlimited.
func WithCapacity(n int64) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithSanityChecks enables the debug checker: repool of a foreign
// pointer, a double repool, a wrong-size repool or a corrupted free
// link panics instead of silently clobbering memory.
func WithSanityChecks(on bool) Option {
	return func(o *options) {
		o.sanity = on
	}
}

// WithDebugTrace logs every region map/unmap and registry growth at
// debug level.  No functional effect.
func WithDebugTrace(on bool) Option {
	return func(o *options) {
		o.trace = on
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// MinPool returns the smallest cell size.
func (ps *PoolSet) MinPool() int { return ps.minPool }

// MaxPool returns the large-block threshold; requests of MaxPool bytes
// or more bypass the pools.
func (ps *PoolSet) MaxPool() int { return ps.maxPool }

// PageSize returns the page size regions are sized from.
func (ps *PoolSet) PageSize() int { return ps.pageSize }

func nextFree(cell unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(cell)
}

func setNextFree(cell, next unsafe.Pointer) {
	*(*unsafe.Pointer)(cell) = next
}

func base(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

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

	"github.com/RoaringBitmap/roaring"
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

// regionSpan is the sanity checker's view of one region: its address
// range, class, and which of its cells are currently on the free list.
type regionSpan struct {
	base     uintptr
	end      uintptr
	cellSize int
	large    bool
	free     *roaring.Bitmap
}

// sanityChecker shadows the allocator in debug mode.  It indexes the
// regions in a btree keyed by base address and tracks free cells per
// region in a bitmap, so a repool of a foreign pointer, a wrong-size
// repool, a double repool and a corrupted free link all panic at the
// operation that introduced them instead of corrupting memory later.
//
// The shadow structures cost memory and a tree lookup per operation;
// keep it off outside tests and debugging sessions.
type sanityChecker struct {
	logger *zap.Logger
	tree   *btree.BTreeG[*regionSpan]
}

func newSanityChecker(logger *zap.Logger) *sanityChecker {
	return &sanityChecker{
		logger: logger,
		tree: btree.NewG(2, func(a, b *regionSpan) bool {
			return a.base < b.base
		}),
	}
}

// spanOf resolves an interior pointer to its region, nil if the
// address is outside every known region.
func (sc *sanityChecker) spanOf(p uintptr) *regionSpan {
	var found *regionSpan
	sc.tree.DescendLessOrEqual(&regionSpan{base: p}, func(it *regionSpan) bool {
		found = it
		return false
	})
	if found == nil || p >= found.end {
		return nil
	}
	return found
}

func (sc *sanityChecker) onRegion(region []byte, cellSize int, large bool, target int) {
	b := uintptr(base(region))
	span := &regionSpan{
		base:     b,
		end:      b + uintptr(len(region)),
		cellSize: cellSize,
		large:    large,
	}
	if !large {
		lim := target / cellSize
		if lim == 0 {
			lim = 1
		}
		span.free = roaring.New()
		span.free.AddRange(0, uint64(lim))
	}
	sc.tree.ReplaceOrInsert(span)
}

// cellAt resolves p to a pooled region of the given cell size and
// returns the region and cell index; any mismatch is a violation.
func (sc *sanityChecker) cellAt(p uintptr, cellSize int, op string) (*regionSpan, uint32) {
	span := sc.spanOf(p)
	if span == nil {
		sc.violation(op+": pointer outside any region",
			zap.Uintptr("ptr", p), zap.Int("cell", cellSize))
	}
	if span.large {
		sc.violation(op+": pooled pointer inside a large block",
			zap.Uintptr("ptr", p), zap.Uintptr("base", span.base))
	}
	if span.cellSize != cellSize {
		sc.violation(op+": cell size mismatch",
			zap.Uintptr("ptr", p),
			zap.Int("cell", cellSize),
			zap.Int("regionCell", span.cellSize))
	}
	off := p - span.base
	if off%uintptr(cellSize) != 0 {
		sc.violation(op+": pointer not cell aligned",
			zap.Uintptr("ptr", p), zap.Int("cell", cellSize))
	}
	return span, uint32(off / uintptr(cellSize))
}

func (sc *sanityChecker) onAlloc(cell, next unsafe.Pointer, cellSize int) {
	span, idx := sc.cellAt(uintptr(cell), cellSize, "alloc")
	if !span.free.Contains(idx) {
		sc.violation("alloc: cell not on the free list",
			zap.Uintptr("ptr", uintptr(cell)), zap.Int("cell", cellSize))
	}
	span.free.Remove(idx)
	if next != nil {
		// a clobbered link word surfaces here, one alloc later
		sc.cellAt(uintptr(next), cellSize, "free link")
	}
}

func (sc *sanityChecker) onRepool(cell unsafe.Pointer, cellSize int) {
	span, idx := sc.cellAt(uintptr(cell), cellSize, "repool")
	if span.free.Contains(idx) {
		sc.violation("double repool",
			zap.Uintptr("ptr", uintptr(cell)), zap.Int("cell", cellSize))
	}
	span.free.Add(idx)
}

func (sc *sanityChecker) onLargeRepool(p unsafe.Pointer) {
	span := sc.spanOf(uintptr(p))
	if span == nil || !span.large || span.base != uintptr(p) {
		sc.violation("repool of unknown large block", zap.Uintptr("ptr", uintptr(p)))
	}
	sc.tree.Delete(span)
}

func (sc *sanityChecker) reset() {
	sc.tree.Clear(false)
}

func (sc *sanityChecker) violation(msg string, fields ...zap.Field) {
	sc.logger.Error("mpool sanity: "+msg, fields...)
	panic(moerr.NewInternalError("mpool sanity: %s", msg))
}

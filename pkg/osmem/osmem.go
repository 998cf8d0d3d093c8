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

// Package osmem isolates the anonymous memory mapping primitive the
// pool allocator is built on.  Everything above this package deals in
// mapped byte slices; everything below is one mmap / munmap pair.
package osmem

import (
	"sync/atomic"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

// Mapper obtains and releases anonymous read-write private mappings.
// Mock implementations let tests count mappings, fail them, or lie
// about the page size.
type Mapper interface {
	// Map returns a zero-filled mapping of exactly n bytes.  The kernel
	// rounds the reservation up to whole pages; the slice length is n.
	Map(n int) ([]byte, error)

	// Unmap releases a mapping previously returned by Map.  The slice
	// must be the original Map result, its length is the mapped length.
	Unmap(b []byte) error

	// PageSize reports the page size regions are sized from.
	PageSize() int
}

// Sys returns the process-wide Mapper backed by the OS.
func Sys() Mapper {
	return sys
}

// CountingMapper wraps a Mapper and keeps balance counters.  It is
// safe for concurrent use, one instance can back many pool sets.
type CountingMapper struct {
	inner Mapper

	MapCalls      atomic.Int64
	UnmapCalls    atomic.Int64
	MappedBytes   atomic.Int64
	UnmappedBytes atomic.Int64
}

func NewCountingMapper(inner Mapper) *CountingMapper {
	return &CountingMapper{inner: inner}
}

func (c *CountingMapper) Map(n int) ([]byte, error) {
	b, err := c.inner.Map(n)
	if err != nil {
		return nil, err
	}
	c.MapCalls.Add(1)
	c.MappedBytes.Add(int64(len(b)))
	return b, nil
}

func (c *CountingMapper) Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n := len(b)
	if err := c.inner.Unmap(b); err != nil {
		return err
	}
	c.UnmapCalls.Add(1)
	c.UnmappedBytes.Add(int64(n))
	return nil
}

func (c *CountingMapper) PageSize() int {
	return c.inner.PageSize()
}

// Balance returns live mapped bytes, zero once every mapping has been
// released.
func (c *CountingMapper) Balance() int64 {
	return c.MappedBytes.Load() - c.UnmappedBytes.Load()
}

// LiveMappings returns the number of mappings not yet released.
func (c *CountingMapper) LiveMappings() int64 {
	return c.MapCalls.Load() - c.UnmapCalls.Load()
}

func checkMapSize(n int) error {
	if n <= 0 {
		return moerr.NewInvalidInput("map size %d", n)
	}
	return nil
}

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
	"encoding/json"
	"sync/atomic"
)

// Stats counts pool activity.  Counters are atomic so collectors and
// reporters may read them from other goroutines while the owning
// goroutine allocates; InuseBytes is tracked at cell-size granularity.
type Stats struct {
	NumAlloc       atomic.Int64
	NumFree        atomic.Int64
	NumLargeAlloc  atomic.Int64
	NumLargeFree   atomic.Int64
	NumRegionMap   atomic.Int64
	NumRegionUnmap atomic.Int64
	MappedBytes    atomic.Int64
	UnmappedBytes  atomic.Int64
	InuseBytes     atomic.Int64
	HighWaterMark  atomic.Int64
}

func (s *Stats) recordInuse(n int64) {
	v := s.InuseBytes.Add(n)
	for {
		hw := s.HighWaterMark.Load()
		if v <= hw || s.HighWaterMark.CompareAndSwap(hw, v) {
			return
		}
	}
}

func (s *Stats) recordRelease(n int64) {
	s.InuseBytes.Add(-n)
}

// Stats returns the live counters; they keep updating.
func (ps *PoolSet) Stats() *Stats {
	return &ps.stats
}

type statsReport struct {
	NumAlloc       int64 `json:"alloc"`
	NumFree        int64 `json:"free"`
	NumLargeAlloc  int64 `json:"largeAlloc"`
	NumLargeFree   int64 `json:"largeFree"`
	NumRegionMap   int64 `json:"regionMap"`
	NumRegionUnmap int64 `json:"regionUnmap"`
	MappedBytes    int64 `json:"mappedBytes"`
	UnmappedBytes  int64 `json:"unmappedBytes"`
	InuseBytes     int64 `json:"inuseBytes"`
	HighWaterMark  int64 `json:"highWaterMark"`
}

// ReportJSON renders a one-line snapshot for logging.
func (ps *PoolSet) ReportJSON() string {
	s := &ps.stats
	b, err := json.Marshal(statsReport{
		NumAlloc:       s.NumAlloc.Load(),
		NumFree:        s.NumFree.Load(),
		NumLargeAlloc:  s.NumLargeAlloc.Load(),
		NumLargeFree:   s.NumLargeFree.Load(),
		NumRegionMap:   s.NumRegionMap.Load(),
		NumRegionUnmap: s.NumRegionUnmap.Load(),
		MappedBytes:    s.MappedBytes.Load(),
		UnmappedBytes:  s.UnmappedBytes.Load(),
		InuseBytes:     s.InuseBytes.Load(),
		HighWaterMark:  s.HighWaterMark.Load(),
	})
	if err != nil {
		return ""
	}
	return string(b)
}

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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	allocDesc = prometheus.NewDesc(
		"mpool_alloc_total", "Pooled cell allocations.", []string{"pool"}, nil)
	freeDesc = prometheus.NewDesc(
		"mpool_free_total", "Pooled cell repools.", []string{"pool"}, nil)
	largeAllocDesc = prometheus.NewDesc(
		"mpool_large_alloc_total", "Large block allocations.", []string{"pool"}, nil)
	largeFreeDesc = prometheus.NewDesc(
		"mpool_large_free_total", "Large block repools.", []string{"pool"}, nil)
	regionMapDesc = prometheus.NewDesc(
		"mpool_region_map_total", "Regions mapped from the OS.", []string{"pool"}, nil)
	regionUnmapDesc = prometheus.NewDesc(
		"mpool_region_unmap_total", "Regions returned to the OS.", []string{"pool"}, nil)
	mappedBytesDesc = prometheus.NewDesc(
		"mpool_mapped_bytes_total", "Bytes mapped from the OS.", []string{"pool"}, nil)
	unmappedBytesDesc = prometheus.NewDesc(
		"mpool_unmapped_bytes_total", "Bytes returned to the OS.", []string{"pool"}, nil)
	inuseBytesDesc = prometheus.NewDesc(
		"mpool_inuse_bytes", "Live bytes at cell-size granularity.", []string{"pool"}, nil)
	highWaterDesc = prometheus.NewDesc(
		"mpool_inuse_high_water_bytes", "Peak of mpool_inuse_bytes.", []string{"pool"}, nil)
)

type statsCollector struct {
	ps   *PoolSet
	name string
}

// Collector exposes the pool's counters to prometheus under the given
// pool label.  Register one per pool set; reads are atomic snapshots,
// so scraping a pool owned by another goroutine is fine.
func (ps *PoolSet) Collector(name string) prometheus.Collector {
	return &statsCollector{ps: ps, name: name}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- allocDesc
	ch <- freeDesc
	ch <- largeAllocDesc
	ch <- largeFreeDesc
	ch <- regionMapDesc
	ch <- regionUnmapDesc
	ch <- mappedBytesDesc
	ch <- unmappedBytesDesc
	ch <- inuseBytesDesc
	ch <- highWaterDesc
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.ps.Stats()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), c.name)
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), c.name)
	}
	counter(allocDesc, s.NumAlloc.Load())
	counter(freeDesc, s.NumFree.Load())
	counter(largeAllocDesc, s.NumLargeAlloc.Load())
	counter(largeFreeDesc, s.NumLargeFree.Load())
	counter(regionMapDesc, s.NumRegionMap.Load())
	counter(regionUnmapDesc, s.NumRegionUnmap.Load())
	counter(mappedBytesDesc, s.MappedBytes.Load())
	counter(unmappedBytesDesc, s.UnmappedBytes.Load())
	gauge(inuseBytesDesc, s.InuseBytes.Load())
	gauge(highWaterDesc, s.HighWaterMark.Load())
}

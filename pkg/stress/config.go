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

package stress

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

// Config drives a soak run.  Every worker owns a private pool set over
// a shared counting mapper; sizes draw uniformly from [1, SmallMax]
// with every LargeEvery-th draw from [1, LargeMax] instead, so the
// large draws exercise both the pooled and the bypass path.
type Config struct {
	// Workers is the goroutine pool size, one pool set each.
	Workers int `toml:"workers"`
	// Iterations is the per-worker iteration count.
	Iterations int64 `toml:"iterations"`

	MinShift int `toml:"min-shift"`
	MaxShift int `toml:"max-shift"`

	SmallMax   int `toml:"small-max"`
	LargeEvery int `toml:"large-every"`
	LargeMax   int `toml:"large-max"`

	// RepoolPercent is the chance per iteration of returning a live
	// block instead of allocating, in percent.
	RepoolPercent int `toml:"repool-percent"`
	// LiveTarget bounds the per-worker live set; above it the worker
	// repools before allocating again.
	LiveTarget int `toml:"live-target"`
	// ReallocEvery reshapes a live block every Nth iteration, 0 never.
	ReallocEvery int `toml:"realloc-every"`

	Seed          int64 `toml:"seed"`
	Sanity        bool  `toml:"sanity"`
	CapacityBytes int64 `toml:"capacity-bytes"`

	// Registerer receives per-worker pool collectors when set.
	Registerer prometheus.Registerer `toml:"-"`
}

func (c *Config) fillDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Iterations <= 0 {
		c.Iterations = 1_000_000
	}
	if c.MinShift == 0 && c.MaxShift == 0 {
		c.MinShift, c.MaxShift = 4, 11
	}
	if c.SmallMax <= 0 {
		c.SmallMax = 63
	}
	// zero means the default cadence, negative disables large draws
	if c.LargeEvery == 0 {
		c.LargeEvery = 100
	} else if c.LargeEvery < 0 {
		c.LargeEvery = 0
	}
	if c.LargeMax <= 0 {
		c.LargeMax = 9999
	}
	if c.RepoolPercent <= 0 {
		c.RepoolPercent = 10
	}
	if c.LiveTarget <= 0 {
		c.LiveTarget = 512
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

func (c *Config) validate() error {
	if c.RepoolPercent > 100 {
		return moerr.NewBadConfig("repool-percent %d over 100", c.RepoolPercent)
	}
	if c.MinShift <= 0 || c.MinShift >= c.MaxShift {
		return moerr.NewBadConfig("shifts %d..%d", c.MinShift, c.MaxShift)
	}
	return nil
}

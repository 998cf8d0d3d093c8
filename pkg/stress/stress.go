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

// Package stress soaks the allocator with a mixed workload: many
// workers, each with a private pool set over one shared counting
// mapper, allocating, stamping, verifying and repooling blocks.  The
// run fails if any stamped byte changes under it or if teardown leaves
// the map/unmap balance nonzero.
package stress

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
	"github.com/matrixorigin/mpool/pkg/logutil"
	"github.com/matrixorigin/mpool/pkg/mpool"
	"github.com/matrixorigin/mpool/pkg/osmem"
)

// Result aggregates a finished run.
type Result struct {
	Workers    int
	Iterations int64
	Allocs     int64
	Repools    int64
	Reallocs   int64
	OOMs       int64
	Canceled   bool
	Elapsed    time.Duration

	MapCalls   int64
	UnmapCalls int64
	// Balance is mapped minus unmapped bytes after every worker tore
	// down; anything but zero is a leak.
	Balance int64
}

type workerTally struct {
	iters, allocs, repools, reallocs, ooms int64
}

// Run executes the configured workload and blocks until every worker
// finished or ctx was canceled.  A canceled run still tears down
// cleanly and reports Canceled instead of failing.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}

	cm := osmem.NewCountingMapper(osmem.Sys())
	workers, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return Result{}, moerr.ConvertGoError(err)
	}
	defer workers.Release()

	logutil.Info("stress run starting",
		zap.Int("workers", cfg.Workers),
		zap.Int64("iterations", cfg.Iterations),
		zap.Int("smallMax", cfg.SmallMax),
		zap.Int("largeEvery", cfg.LargeEvery),
		zap.Bool("sanity", cfg.Sanity))

	start := time.Now()
	tallies := make([]workerTally, cfg.Workers)
	errs := make([]error, cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		w := w
		wg.Add(1)
		if err := workers.Submit(func() {
			defer wg.Done()
			tallies[w], errs[w] = runWorker(ctx, cfg, w, cm)
		}); err != nil {
			wg.Done()
			errs[w] = moerr.ConvertGoError(err)
			break
		}
	}
	wg.Wait()

	res := Result{
		Workers:    cfg.Workers,
		Canceled:   ctx.Err() != nil,
		Elapsed:    time.Since(start),
		MapCalls:   cm.MapCalls.Load(),
		UnmapCalls: cm.UnmapCalls.Load(),
		Balance:    cm.Balance(),
	}
	for _, ta := range tallies {
		res.Iterations += ta.iters
		res.Allocs += ta.allocs
		res.Repools += ta.repools
		res.Reallocs += ta.reallocs
		res.OOMs += ta.ooms
	}
	for _, err := range errs {
		if err != nil {
			return res, err
		}
	}
	if res.Balance != 0 {
		return res, moerr.NewInternalError("mapper imbalance after teardown: %d bytes", res.Balance)
	}

	logutil.Info("stress run finished",
		zap.Int64("iterations", res.Iterations),
		zap.Int64("allocs", res.Allocs),
		zap.Int64("ooms", res.OOMs),
		zap.Bool("canceled", res.Canceled),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

type liveBlock struct {
	mem   []byte
	sz    int
	stamp byte
}

// runWorker drives one pool set.  Every live block is filled with its
// stamp byte and verified before it goes back, so a cell handed to two
// owners or scribbled by the allocator fails loudly.
func runWorker(ctx context.Context, cfg Config, idx int, cm *osmem.CountingMapper) (workerTally, error) {
	var ta workerTally

	opts := []mpool.Option{
		mpool.WithMapper(cm),
		mpool.WithSanityChecks(cfg.Sanity),
	}
	if cfg.CapacityBytes > 0 {
		opts = append(opts, mpool.WithCapacity(cfg.CapacityBytes))
	}
	ps, err := mpool.New(cfg.MinShift, cfg.MaxShift, opts...)
	if err != nil {
		return ta, err
	}
	defer ps.FreeAll()

	if cfg.Registerer != nil {
		c := ps.Collector(fmt.Sprintf("stress-%d", idx))
		if err := cfg.Registerer.Register(c); err == nil {
			defer cfg.Registerer.Unregister(c)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed + int64(idx)))
	live := make([]liveBlock, 0, cfg.LiveTarget)

	repoolOne := func(k int) error {
		bl := live[k]
		if err := verify(bl); err != nil {
			return err
		}
		ps.Repool(bl.mem, bl.sz)
		ta.repools++
		live[k] = live[len(live)-1]
		live = live[:len(live)-1]
		return nil
	}

	for i := int64(0); i < cfg.Iterations; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			break
		}
		ta.iters++

		if len(live) > 0 &&
			(len(live) >= cfg.LiveTarget || rng.Intn(100) < cfg.RepoolPercent) {
			if err := repoolOne(rng.Intn(len(live))); err != nil {
				return ta, err
			}
			continue
		}

		if cfg.ReallocEvery > 0 && len(live) > 0 && i%int64(cfg.ReallocEvery) == 0 {
			k := rng.Intn(len(live))
			bl := live[k]
			if err := verify(bl); err != nil {
				return ta, err
			}
			newSz := 1 + rng.Intn(cfg.SmallMax)
			mem, err := ps.Realloc(bl.mem, bl.sz, newSz)
			if err != nil {
				if moerr.IsMoErrCode(err, moerr.ErrOOM) {
					ta.ooms++
					continue
				}
				return ta, err
			}
			ta.reallocs++
			n := bl.sz
			if newSz < n {
				n = newSz
			}
			for j := 0; j < n; j++ {
				if mem[j] != bl.stamp {
					return ta, moerr.NewInternalError(
						"realloc lost byte %d of worker %d block", j, idx)
				}
			}
			live[k] = stamped(mem, newSz, bl.stamp)
			continue
		}

		sz := 1 + rng.Intn(cfg.SmallMax)
		if cfg.LargeEvery > 0 && i%int64(cfg.LargeEvery) == 0 {
			sz = 1 + rng.Intn(cfg.LargeMax)
		}
		mem, err := ps.Alloc(sz)
		if err != nil {
			if moerr.IsMoErrCode(err, moerr.ErrOOM) {
				// capacity-capped runs ride through by shedding a block
				ta.ooms++
				if len(live) > 0 {
					if err := repoolOne(rng.Intn(len(live))); err != nil {
						return ta, err
					}
				}
				continue
			}
			return ta, err
		}
		ta.allocs++
		live = append(live, stamped(mem, sz, byte(i)|1))
	}

	for len(live) > 0 {
		if err := repoolOne(len(live) - 1); err != nil {
			return ta, err
		}
	}
	return ta, nil
}

func stamped(mem []byte, sz int, stamp byte) liveBlock {
	for i := range mem {
		mem[i] = stamp
	}
	return liveBlock{mem: mem, sz: sz, stamp: stamp}
}

func verify(bl liveBlock) error {
	for i, b := range bl.mem {
		if b != bl.stamp {
			return moerr.NewInternalError(
				"stamp %#x lost at byte %d of a %d-byte block, found %#x",
				bl.stamp, i, bl.sz, b)
		}
	}
	return nil
}

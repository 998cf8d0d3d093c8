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
	"context"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

func TestRunMixedWorkload(t *testing.T) {
	defer leaktest.AfterTest(t)()

	res, err := Run(context.Background(), Config{
		Workers:    4,
		Iterations: 30_000,
		Seed:       99,
	})
	require.NoError(t, err)
	require.Equal(t, int64(4*30_000), res.Iterations)
	require.Equal(t, int64(0), res.Balance, "teardown must unmap everything")
	require.Equal(t, res.MapCalls, res.UnmapCalls)
	require.Greater(t, res.Allocs, int64(0))
	require.Greater(t, res.Repools, int64(0))
	require.False(t, res.Canceled)
	require.Equal(t, int64(0), res.OOMs)
}

func TestRunWithSanityAndRealloc(t *testing.T) {
	defer leaktest.AfterTest(t)()

	res, err := Run(context.Background(), Config{
		Workers:      2,
		Iterations:   10_000,
		Sanity:       true,
		ReallocEvery: 17,
		Seed:         5,
	})
	require.NoError(t, err)
	require.Greater(t, res.Reallocs, int64(0))
	require.Equal(t, int64(0), res.Balance)
}

func TestRunCapacityCapped(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// a single page per worker forces OOMs; the run sheds and rides on
	res, err := Run(context.Background(), Config{
		Workers:       2,
		Iterations:    5_000,
		LargeEvery:    -1,
		LiveTarget:    64,
		CapacityBytes: 2 * 4096,
		Seed:          3,
	})
	require.NoError(t, err)
	require.Greater(t, res.OOMs, int64(0))
	require.Equal(t, int64(0), res.Balance)
}

func TestRunCanceled(t *testing.T) {
	defer leaktest.AfterTest(t)()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res, err := Run(ctx, Config{
		Workers:    2,
		Iterations: 1 << 40,
		Seed:       11,
	})
	require.NoError(t, err)
	require.True(t, res.Canceled)
	require.Less(t, res.Iterations, int64(1)<<40, "must stop well short of the configured count")
	require.Equal(t, int64(0), res.Balance, "canceled run still tears down")
}

func TestRunRegistersCollectors(t *testing.T) {
	defer leaktest.AfterTest(t)()

	reg := prometheus.NewRegistry()
	done := make(chan struct{})
	go func() {
		defer close(done)
		// sample mid-run; collectors unregister when workers finish
		for i := 0; i < 50; i++ {
			_, _ = reg.Gather()
			time.Sleep(time.Millisecond)
		}
	}()

	res, err := Run(context.Background(), Config{
		Workers:    2,
		Iterations: 50_000,
		Seed:       21,
		Registerer: reg,
	})
	<-done
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Balance)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, mfs, "collectors unregister at teardown")
}

func TestConfigValidate(t *testing.T) {
	_, err := Run(context.Background(), Config{RepoolPercent: 101})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))

	_, err = Run(context.Background(), Config{MinShift: 9, MaxShift: 4})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.fillDefaults()
	require.Greater(t, c.Workers, 0)
	require.Equal(t, int64(1_000_000), c.Iterations)
	require.Equal(t, 4, c.MinShift)
	require.Equal(t, 11, c.MaxShift)
	require.Equal(t, 63, c.SmallMax)
	require.Equal(t, 100, c.LargeEvery)
	require.Equal(t, 9999, c.LargeMax)
	require.Equal(t, 10, c.RepoolPercent)
	require.NoError(t, c.validate())

	neg := Config{LargeEvery: -1}
	neg.fillDefaults()
	require.Equal(t, 0, neg.LargeEvery, "negative disables large draws")
}

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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matrixorigin/mpool/pkg/logutil"
	"github.com/matrixorigin/mpool/pkg/stress"
)

var (
	configFile = flag.String("cfg", "", "toml configuration used to run the workload, empty for defaults")
	version    = flag.Bool("version", false, "print version information")
)

var setupLoggerOnce sync.Once

func main() {
	flag.Parse()
	maybePrintVersion()

	cfg, err := parseConfigFromFile(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config from %s, error: %s", *configFile, err.Error()))
	}
	setupLogger(cfg)

	reg := prometheus.NewRegistry()
	cfg.Stress.Registerer = reg
	startDebugServers(cfg, reg)

	ctx, cancel := context.WithCancel(context.Background())
	go waitSignalToStop(cancel)

	res, err := stress.Run(ctx, cfg.Stress)
	if err != nil {
		logutil.Error("stress run failed",
			zap.Error(err),
			zap.Int64("iterations", res.Iterations),
			zap.Int64("balance", res.Balance))
		os.Exit(1)
	}
	logutil.Info("stress run passed",
		zap.Int("workers", res.Workers),
		zap.Int64("iterations", res.Iterations),
		zap.Int64("allocs", res.Allocs),
		zap.Int64("repools", res.Repools),
		zap.Int64("reallocs", res.Reallocs),
		zap.Int64("ooms", res.OOMs),
		zap.Int64("mapCalls", res.MapCalls),
		zap.Int64("unmapCalls", res.UnmapCalls),
		zap.Bool("canceled", res.Canceled),
		zap.Duration("elapsed", res.Elapsed))
}

func setupLogger(cfg *Config) {
	setupLoggerOnce.Do(func() {
		logutil.SetupMOLogger(&cfg.Log)
	})
}

func waitSignalToStop(cancel context.CancelFunc) {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGTERM, syscall.SIGINT)
	<-sigchan
	logutil.Info("signal received, stopping")
	cancel()
}

func startDebugServers(cfg *Config, reg *prometheus.Registry) {
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logutil.Errorf("metrics server: %v", err)
			}
		}()
		logutil.Infof("serving /metrics on %s", cfg.MetricsAddr)
	}
	if cfg.PprofAddr != "" {
		// pprof handlers sit on the default mux via the blank import
		go func() {
			if err := http.ListenAndServe(cfg.PprofAddr, nil); err != nil {
				logutil.Errorf("pprof server: %v", err)
			}
		}()
		logutil.Infof("serving pprof on %s", cfg.PprofAddr)
	}
}

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
	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/mpool/pkg/logutil"
	"github.com/matrixorigin/mpool/pkg/stress"
)

// Config is the toml layout behind -cfg.  Every field has a workable
// zero value, so an empty path runs the default workload.
type Config struct {
	// MetricsAddr serves the run's prometheus collectors on /metrics
	// when set, e.g. "127.0.0.1:7001".
	MetricsAddr string `toml:"metrics-addr"`
	// PprofAddr serves net/http/pprof when set.
	PprofAddr string `toml:"pprof-addr"`

	Log    logutil.LogConfig `toml:"log"`
	Stress stress.Config     `toml:"stress"`
}

func parseConfigFromFile(file string) (*Config, error) {
	cfg := &Config{}
	if file == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(file, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

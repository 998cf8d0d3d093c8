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

package logutil

import (
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogConfig_getter(t *testing.T) {
	tests := []struct {
		name        string
		cfg         LogConfig
		wantLevel   zap.AtomicLevel
		wantOpts    int
		wantSyncer  zapcore.WriteSyncer
		wantEncoder zapcore.Encoder
		wantSinks   int
	}{
		{
			name:        "console",
			cfg:         LogConfig{Level: "debug", Format: "console"},
			wantLevel:   zap.NewAtomicLevelAt(zap.DebugLevel),
			wantOpts:    2,
			wantSyncer:  getConsoleSyncer(),
			wantEncoder: getLoggerEncoder("console"),
			wantSinks:   1,
		},
		{
			name:        "json with bad level",
			cfg:         LogConfig{Level: "whatever", Format: "json"},
			wantLevel:   zap.NewAtomicLevelAt(zap.InfoLevel),
			wantOpts:    2,
			wantSyncer:  getConsoleSyncer(),
			wantEncoder: getLoggerEncoder("json"),
			wantSinks:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantLevel, tt.cfg.getLevel())
			require.Equal(t, tt.wantOpts, len(tt.cfg.getOptions()))
			require.Equal(t, tt.wantSyncer, tt.cfg.getSyncer())

			entry := zapcore.Entry{Level: zapcore.DebugLevel, Message: "msg"}
			wantMsg, _ := tt.wantEncoder.EncodeEntry(entry, nil)
			gotMsg, _ := tt.cfg.getEncoder().EncodeEntry(entry, nil)
			require.Equal(t, wantMsg.String(), gotMsg.String())
			require.Equal(t, tt.wantSinks, len(tt.cfg.getSinks()))
		})
	}
}

func TestSetupMOLogger(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tests := []*LogConfig{
		{Level: zapcore.DebugLevel.String(), Format: "console", StacktraceLevel: "panic"},
		{Level: zapcore.DebugLevel.String(), Format: "json", StacktraceLevel: "error"},
	}
	for _, cfg := range tests {
		SetupMOLogger(cfg)
		logger := GetGlobalLogger()
		require.NotNil(t, logger)
		require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestGetGlobalLoggerDefault(t *testing.T) {
	_globalLogger.Store(nil)
	logger := GetGlobalLogger()
	require.NotNil(t, logger)
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestFileSyncer(t *testing.T) {
	cfg := &LogConfig{
		Level:    "info",
		Format:   "json",
		Filename: t.TempDir() + "/mpool.log",
		MaxSize:  1,
	}
	require.NotEqual(t, getConsoleSyncer(), cfg.getSyncer())
}

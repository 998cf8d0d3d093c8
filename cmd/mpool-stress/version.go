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
	"fmt"
	"os"
	"runtime"
)

// set at build time through -ldflags
var (
	Version   = "unknown"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func maybePrintVersion() {
	if !*version {
		return
	}
	fmt.Printf("mpool-stress version: %s\n", Version)
	fmt.Printf("build time: %s\n", BuildTime)
	fmt.Printf("git commit: %s\n", GitCommit)
	fmt.Printf("go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	os.Exit(0)
}

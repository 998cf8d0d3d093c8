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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package osmem

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/matrixorigin/mpool/pkg/common/moerr"
)

var sys Mapper = sysMapper{}

// getPageSize is a seam for tests.
var getPageSize = os.Getpagesize

type sysMapper struct{}

func (sysMapper) Map(n int) ([]byte, error) {
	if err := checkMapSize(n); err != nil {
		return nil, err
	}
	b, err := unix.Mmap(
		-1, 0,
		n,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, moerr.NewOOM("mmap %d bytes: %v", n, err)
	}
	return b, nil
}

func (sysMapper) Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return moerr.NewInternalError("munmap %d bytes: %v", len(b), err)
	}
	return nil
}

func (sysMapper) PageSize() int {
	return getPageSize()
}

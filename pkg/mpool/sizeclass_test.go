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
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestSizeClass(t *testing.T) {
	convey.Convey("size classes over shifts 4..11", t, func() {
		ps, err := New(4, 11)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("requests round to the next power of two at or above the minimum", func() {
			cases := []struct{ sz, cell int }{
				{1, 16}, {2, 16}, {8, 16}, {15, 16},
				{16, 32}, {17, 32}, {31, 32},
				{32, 64}, {63, 64},
				{64, 128}, {100, 128},
				{1000, 1024}, {1023, 1024},
				{1024, 2048}, {2047, 2048},
			}
			for _, c := range cases {
				_, cell := ps.sizeClass(c.sz)
				convey.So(cell, convey.ShouldEqual, c.cell)
			}
		})

		convey.Convey("an exact power of two rounds up a class", func() {
			i16, c16 := ps.sizeClass(16)
			i17, c17 := ps.sizeClass(17)
			convey.So(c16, convey.ShouldEqual, 32)
			convey.So(c16, convey.ShouldEqual, c17)
			convey.So(i16, convey.ShouldEqual, i17)
		})

		convey.Convey("class index maps back to the cell size", func() {
			for sz := 1; sz < ps.MaxPool(); sz++ {
				idx, cell := ps.sizeClass(sz)
				convey.So(cell, convey.ShouldEqual, ps.MinPool()<<idx)
			}
		})

		convey.Convey("every pooled size matches the brute-force rule", func() {
			for sz := 1; sz < ps.MaxPool(); sz++ {
				want := ps.MinPool()
				for want <= sz {
					want <<= 1
				}
				_, cell := ps.sizeClass(sz)
				convey.So(cell, convey.ShouldEqual, want)
			}
		})
	})
}

func TestIceil2(t *testing.T) {
	convey.Convey("iceil2 is the base-2 ceiling", t, func() {
		cases := []struct{ in, out int }{
			{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4},
			{5, 8}, {7, 8}, {8, 8}, {9, 16},
			{100, 128}, {1024, 1024}, {1025, 2048},
		}
		for _, c := range cases {
			convey.So(iceil2(c.in), convey.ShouldEqual, c.out)
		}
	})
}

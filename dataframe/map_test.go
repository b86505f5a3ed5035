// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataframe_test

import (
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-allocate/dataframe"
)

var _ = Describe("Map", func() {
	var (
		dfMap dataframe.Map
	)

	day := func(d int) time.Time {
		return time.Date(2021, time.March, d, 0, 0, 0, 0, time.UTC)
	}

	BeforeEach(func() {
		dfMap = dataframe.Map{
			"AAA": {
				Dates:    []time.Time{day(1), day(2), day(3), day(4), day(5)},
				ColNames: []string{"AAA"},
				Vals:     [][]float64{{1, 2, 3, 4, 5}},
			},
			"BBB": {
				Dates:    []time.Time{day(2), day(3), day(4), day(5), day(6)},
				ColNames: []string{"BBB"},
				Vals:     [][]float64{{20, 30, math.NaN(), 50, 60}},
			},
			"CCC": {
				Dates:    []time.Time{day(5), day(3), day(2)},
				ColNames: []string{"CCC"},
				Vals:     [][]float64{{500, 300, 200}},
			},
		}
	})

	It("keeps only the dates present in every series", func() {
		df, err := dfMap.Join("AAA", "BBB")
		Expect(err).To(BeNil())
		Expect(df.Dates).To(Equal([]time.Time{day(2), day(3), day(5)}))
		Expect(df.Vals[0]).To(Equal([]float64{2, 3, 5}))
		Expect(df.Vals[1]).To(Equal([]float64{20, 30, 50}))
	})

	It("orders columns by the requested order", func() {
		df, err := dfMap.Join("CCC", "AAA", "BBB")
		Expect(err).To(BeNil())
		Expect(df.ColNames).To(Equal([]string{"CCC", "AAA", "BBB"}))
		Expect(df.Dates).To(Equal([]time.Time{day(2), day(3), day(5)}))
		Expect(df.Vals[0]).To(Equal([]float64{200, 300, 500}))
	})

	It("fails when a requested series is missing", func() {
		_, err := dfMap.Join("AAA", "ZZZ")
		Expect(errors.Is(err, dataframe.ErrMissingColumn)).To(BeTrue())
	})

	It("fails when the series do not overlap", func() {
		dfMap["DDD"] = &dataframe.DataFrame{
			Dates:    []time.Time{day(20)},
			ColNames: []string{"DDD"},
			Vals:     [][]float64{{1}},
		}
		_, err := dfMap.Join("AAA", "DDD")
		Expect(err).To(MatchError(dataframe.ErrNoCommonDates))
	})

	It("returns an empty dataframe when nothing is requested", func() {
		df, err := dfMap.Join()
		Expect(err).To(BeNil())
		Expect(df.Len()).To(Equal(0))
	})

	It("lists keys in sorted order", func() {
		Expect(dfMap.Keys()).To(Equal([]string{"AAA", "BBB", "CCC"}))
	})
})

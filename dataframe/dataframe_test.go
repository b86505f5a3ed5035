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
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-allocate/dataframe"
)

var _ = Describe("DataFrame", func() {
	Context("with no values", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = &dataframe.DataFrame{}
		})

		It("has zero length", func() {
			Expect(df.Len()).To(Equal(0))
		})

		It("has zero columns", func() {
			Expect(df.ColCount()).To(Equal(0))
		})

		It("does not error on drop", func() {
			df = df.Drop(1)
			Expect(df.Len()).To(Equal(0))
		})

		It("does not error on trim", func() {
			df = df.Trim(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
			Expect(df.Len()).To(Equal(0))
		})

		It("has zero start and end", func() {
			Expect(df.Start().IsZero()).To(BeTrue())
			Expect(df.End().IsZero()).To(BeTrue())
		})

		It("prints no data", func() {
			Expect(df.Table()).To(Equal("<NO DATA>"))
		})
	})

	Context("with 2 years of values and a single column", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			dates := make([]time.Time, 730)
			vals := make([]float64, 730)
			dt := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			for idx := range dates {
				dates[idx] = dt
				dt = dt.AddDate(0, 0, 1)
				vals[idx] = float64(idx)
			}
			df = &dataframe.DataFrame{
				ColNames: []string{"Col1"},
				Dates:    dates,
				Vals:     [][]float64{vals},
			}
		})

		It("has length", func() {
			Expect(df.Len()).To(Equal(730))
		})

		It("has 1 column", func() {
			Expect(df.ColCount()).To(Equal(1))
		})

		It("finds columns by name", func() {
			Expect(df.ColIndex("Col1")).To(Equal(0))
			Expect(df.ColIndex("Col2")).To(Equal(-1))
			Expect(df.Column("Col2")).To(BeNil())
			Expect(df.Column("Col1")).To(HaveLen(730))
		})

		It("can remove all 0s with drop", func() {
			Expect(df.Len()).To(Equal(730))
			df = df.Drop(0)
			Expect(df.Len()).To(Equal(729))
			Expect(df.Vals[0][0]).To(BeNumerically("==", 1.0))
		})

		It("copies values instead of sharing them", func() {
			df2 := df.Copy()
			df2.Vals[0][0] = 100
			Expect(df.Vals[0][0]).To(BeNumerically("==", 0.0))
			Expect(df2.Len()).To(Equal(df.Len()))
		})

		DescribeTable("trims values by date range", func(a, b time.Time, expectedLen int, expectedA, expectedB time.Time) {
			df = df.Trim(a, b)
			Expect(df.Len()).To(Equal(expectedLen))
			if expectedLen > 1 {
				Expect(df.Dates[0]).To(Equal(expectedA), "expected begin date")
				Expect(df.Dates[len(df.Dates)-1]).To(Equal(expectedB), "expected end date")
			}
		},
			Entry("whole range", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 12, 30, 0, 0, 0, 0, time.UTC), 730, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 12, 30, 0, 0, 0, 0, time.UTC)),
			Entry("range that does not exist in dataframe (left)", time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2019, 12, 30, 0, 0, 0, 0, time.UTC), 0, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2019, 12, 30, 0, 0, 0, 0, time.UTC)),
			Entry("range that does not exist in dataframe (right)", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), 0, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)),
			Entry("range that touches start but not end", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), 5, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)),
			Entry("range that extends beyond the end", time.Date(2021, 12, 27, 0, 0, 0, 0, time.UTC), time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC), 4, time.Date(2021, 12, 27, 0, 0, 0, 0, time.UTC), time.Date(2021, 12, 30, 0, 0, 0, 0, time.UTC)),
			Entry("range in the middle of dataframe", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 6, 5, 0, 0, 0, 0, time.UTC), 5, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 6, 5, 0, 0, 0, 0, time.UTC)),
			Entry("single date", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 1, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
			Entry("inverted range", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 0, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
		)

		It("renders a table with a row count footer", func() {
			df = df.Trim(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC))
			table := df.Table()
			Expect(table).To(ContainSubstring("2020-01-02"))
			Expect(table).To(ContainSubstring("2.0000"))
			Expect(table).To(ContainSubstring("3"))
		})
	})

	Context("with NaN values in dataframe", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			dates := make([]time.Time, 10)
			vals := make([]float64, 10)
			dt := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			for idx := range dates {
				dates[idx] = dt
				dt = dt.AddDate(0, 0, 1)
				if idx < 5 {
					vals[idx] = float64(idx)
				} else {
					vals[idx] = math.NaN()
				}
			}
			df = &dataframe.DataFrame{
				ColNames: []string{"Col1"},
				Dates:    dates,
				Vals:     [][]float64{vals},
			}
		})

		It("drops NaNs", func() {
			Expect(df.Len()).To(Equal(10))
			df = df.Drop(math.NaN())
			Expect(df.Len()).To(Equal(5), "length")
			Expect(df.Vals[0]).To(Equal([]float64{0.0, 1.0, 2.0, 3.0, 4.0}), "vals")
			Expect(df.End()).To(Equal(time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)))
		})
	})

	Context("when rows are inserted", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = &dataframe.DataFrame{
				ColNames: []string{"A", "B"},
			}
		})

		It("appends rows in order", func() {
			df.InsertRow(time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), 1, 2)
			df.InsertRow(time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), 3, 4)
			Expect(df.Len()).To(Equal(2))
			Expect(df.Vals[0]).To(Equal([]float64{1, 3}))
			Expect(df.Vals[1]).To(Equal([]float64{2, 4}))
		})

		It("panics when the date is not after the last date", func() {
			df.InsertRow(time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), 1, 2)
			Expect(func() {
				df.InsertRow(time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), 3, 4)
			}).To(Panic())
		})

		It("panics when the number of values does not match the columns", func() {
			Expect(func() {
				df.InsertRow(time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), 1)
			}).To(Panic())
		})
	})

	Context("with unsorted dates", func() {
		It("sorts rows by date and keeps the last duplicate", func() {
			df := &dataframe.DataFrame{
				ColNames: []string{"A"},
				Dates: []time.Time{
					time.Date(2021, 1, 6, 0, 0, 0, 0, time.UTC),
					time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
					time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
					time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
				},
				Vals: [][]float64{{6, 4, 5, 40}},
			}

			df.Sort()
			Expect(df.Dates).To(Equal([]time.Time{
				time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
				time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
				time.Date(2021, 1, 6, 0, 0, 0, 0, time.UTC),
			}))
			Expect(df.Vals[0]).To(Equal([]float64{40, 5, 6}))
		})
	})
})

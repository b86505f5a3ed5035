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

package report_test

import (
	"bytes"
	"errors"
	"math"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-allocate/report"
)

var _ = Describe("Allocation", func() {
	var (
		alloc *report.Allocation
	)

	BeforeEach(func() {
		var err error
		alloc, err = report.NewAllocation([]string{"RELIANCE", "TCS"}, []float64{0.123456, 0.876544}, 100000)
		Expect(err).To(BeNil())
	})

	It("rounds the weight and amount of each holding to 2 decimals", func() {
		Expect(alloc.Holdings).To(HaveLen(2))
		Expect(alloc.Holdings[0].Symbol).To(Equal("RELIANCE"))
		Expect(alloc.Holdings[0].WeightPct).To(Equal(12.35))
		Expect(alloc.Holdings[0].Amount).To(Equal(12345.6))
		Expect(alloc.Holdings[1].WeightPct).To(Equal(87.65))
		Expect(alloc.Holdings[1].Amount).To(Equal(87654.4))
	})

	It("keeps the exact weights", func() {
		Expect(alloc.Holdings[0].Weight).To(Equal(0.123456))
	})

	It("assigns a run identifier", func() {
		Expect(alloc.RunID).ToNot(Equal(uuid.Nil))
		other, err := report.NewAllocation([]string{"A"}, []float64{1}, 10)
		Expect(err).To(BeNil())
		Expect(other.RunID).ToNot(Equal(alloc.RunID))
	})

	DescribeTable("rejects invalid investments", func(investment float64) {
		_, err := report.NewAllocation([]string{"A", "B"}, []float64{0.5, 0.5}, investment)
		Expect(errors.Is(err, report.ErrInvalidInvestment)).To(BeTrue())
	},
		Entry("zero", 0.0),
		Entry("negative", -1000.0),
		Entry("NaN", math.NaN()),
		Entry("infinite", math.Inf(1)),
	)

	It("rejects mismatched inputs", func() {
		_, err := report.NewAllocation([]string{"A", "B"}, []float64{1}, 1000)
		Expect(errors.Is(err, report.ErrLengthMismatch)).To(BeTrue())
	})

	Describe("SetVolatilities", func() {
		It("records the volatility of each holding", func() {
			Expect(alloc.SetVolatilities([]float64{0.25, 0.18})).To(Succeed())
			Expect(alloc.Holdings[0].Volatility).To(Equal(0.25))
			Expect(alloc.Holdings[1].Volatility).To(Equal(0.18))
		})

		It("rejects a volatility per holding mismatch", func() {
			err := alloc.SetVolatilities([]float64{0.25})
			Expect(errors.Is(err, report.ErrLengthMismatch)).To(BeTrue())
			Expect(alloc.Holdings[0].Volatility).To(Equal(0.0))
		})
	})

	DescribeTable("Round", func(x float64, decimals int, expected float64) {
		Expect(report.Round(x, decimals)).To(Equal(expected))
	},
		Entry("rounds down", 1.234, 2, 1.23),
		Entry("rounds up", 1.236, 2, 1.24),
		Entry("keeps short values", 12345.6, 2, 12345.6),
		Entry("whole numbers", 2.5, 0, 3.0),
		Entry("negative halves away from zero", -2.5, 0, -3.0),
	)

	Describe("WriteCSV", func() {
		It("writes the exact export format", func() {
			buf := &bytes.Buffer{}
			Expect(alloc.WriteCSV(buf)).To(Succeed())
			Expect(buf.String()).To(Equal("Symbol,Weight (%),Amount\nRELIANCE,12.35,12345.60\nTCS,87.65,87654.40\n"))
		})

		It("always prints two decimals", func() {
			a, err := report.NewAllocation([]string{"A", "B"}, []float64{0.5, 0.5}, 1000)
			Expect(err).To(BeNil())
			buf := &bytes.Buffer{}
			Expect(a.WriteCSV(buf)).To(Succeed())
			Expect(buf.String()).To(Equal("Symbol,Weight (%),Amount\nA,50.00,500.00\nB,50.00,500.00\n"))
		})
	})

	Describe("WriteJSON", func() {
		It("round trips the holdings", func() {
			alloc.ExpectedReturn = 0.12
			alloc.Volatility = 0.2
			alloc.Sharpe = 0.6

			buf := &bytes.Buffer{}
			Expect(alloc.WriteJSON(buf)).To(Succeed())

			decoded := report.Allocation{}
			Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
			Expect(decoded.RunID).To(Equal(alloc.RunID))
			Expect(decoded.Holdings).To(Equal(alloc.Holdings))
			Expect(decoded.Sharpe).To(Equal(0.6))
			Expect(decoded.MinVolatility).To(BeNil())
		})

		It("includes the minimum volatility portfolio", func() {
			alloc.MinVolatility = &report.Portfolio{
				Weights:        []float64{0.4, 0.6},
				ExpectedReturn: 0.08,
				Volatility:     0.15,
				Sharpe:         0.53,
			}

			buf := &bytes.Buffer{}
			Expect(alloc.WriteJSON(buf)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(`"minVolatility"`))

			decoded := report.Allocation{}
			Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
			Expect(decoded.MinVolatility).To(Equal(alloc.MinVolatility))
		})
	})

	Describe("Table", func() {
		It("lists every holding and the portfolio statistics", func() {
			alloc.ExpectedReturn = 0.1234
			alloc.Volatility = 0.2
			alloc.Sharpe = 0.617
			alloc.Omitted = []string{"INFY"}

			table := alloc.Table()
			Expect(table).To(ContainSubstring("RELIANCE"))
			Expect(table).To(ContainSubstring("12345.60"))
			Expect(table).To(ContainSubstring("87.65"))
			Expect(table).To(ContainSubstring("Expected Return: 12.34%"))
			Expect(table).To(ContainSubstring("Volatility:      20.00%"))
			Expect(table).To(ContainSubstring("Omitted:         INFY"))
			Expect(table).ToNot(ContainSubstring("Minimum Volatility Portfolio"))
		})

		It("shows holding volatility and the minimum volatility portfolio", func() {
			Expect(alloc.SetVolatilities([]float64{0.2512, 0.18})).To(Succeed())
			alloc.MinVolatility = &report.Portfolio{
				Weights:        []float64{0.4, 0.6},
				ExpectedReturn: 0.08,
				Volatility:     0.15,
				Sharpe:         0.53,
			}

			table := alloc.Table()
			Expect(table).To(ContainSubstring("25.12"))
			Expect(table).To(ContainSubstring("40.00"))
			Expect(table).To(ContainSubstring("60.00"))
			Expect(table).To(ContainSubstring("Minimum Volatility Portfolio"))
			Expect(table).To(ContainSubstring("Volatility:      15.00%"))
			Expect(table).To(ContainSubstring("Sharpe Ratio:    0.5300"))
		})
	})
})

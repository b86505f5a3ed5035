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

// Package report turns optimal portfolio weights into a human readable
// allocation of an investment amount.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// Holding is the share of the investment assigned to one security. WeightPct
// and Amount are rounded to 2 decimals for display; Weight is exact.
// Volatility is the annualized volatility of the security on its own.
type Holding struct {
	Symbol     string  `json:"symbol"`
	Weight     float64 `json:"weight"`
	WeightPct  float64 `json:"weightPct"`
	Amount     float64 `json:"amount"`
	Volatility float64 `json:"volatility"`
}

// Portfolio summarizes an alternative weighting of the same securities
type Portfolio struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expectedReturn"`
	Volatility     float64   `json:"volatility"`
	Sharpe         float64   `json:"sharpe"`
}

// Allocation splits an investment across the securities of a portfolio
type Allocation struct {
	RunID      uuid.UUID `json:"runId"`
	CreatedAt  time.Time `json:"createdAt"`
	Investment float64   `json:"investment"`
	Holdings   []Holding `json:"holdings"`

	ExpectedReturn float64 `json:"expectedReturn"`
	Volatility     float64 `json:"volatility"`
	Sharpe         float64 `json:"sharpe"`
	RiskFreeRate   float64 `json:"riskFreeRate"`

	// MinVolatility is the least volatile portfolio found by the same search
	MinVolatility *Portfolio `json:"minVolatility,omitempty"`

	Provider string    `json:"provider,omitempty"`
	Samples  int       `json:"samples"`
	Feasible int       `json:"feasible"`
	Omitted  []string  `json:"omitted,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// NewAllocation assigns weights[i] of investment to symbols[i]
func NewAllocation(symbols []string, weights []float64, investment float64) (*Allocation, error) {
	if investment <= 0 || math.IsNaN(investment) || math.IsInf(investment, 0) {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidInvestment, investment)
	}

	if len(symbols) != len(weights) {
		return nil, fmt.Errorf("%w: %d symbols, %d weights", ErrLengthMismatch, len(symbols), len(weights))
	}

	alloc := &Allocation{
		RunID:      uuid.New(),
		CreatedAt:  time.Now(),
		Investment: investment,
		Holdings:   make([]Holding, len(symbols)),
	}

	for idx, symbol := range symbols {
		alloc.Holdings[idx] = Holding{
			Symbol:    symbol,
			Weight:    weights[idx],
			WeightPct: Round(weights[idx]*100, 2),
			Amount:    Round(weights[idx]*investment, 2),
		}
	}

	return alloc, nil
}

// Round rounds x to the given number of decimals, halves away from zero
func Round(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(x*scale) / scale
}

// WriteCSV writes one row per holding with the header Symbol,Weight (%),Amount
func (a *Allocation) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Symbol", "Weight (%)", "Amount"}); err != nil {
		return err
	}

	for _, holding := range a.Holdings {
		row := []string{
			holding.Symbol,
			fmt.Sprintf("%.2f", holding.WeightPct),
			fmt.Sprintf("%.2f", holding.Amount),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the allocation as indented JSON
func (a *Allocation) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// SetVolatilities records the standalone volatility of each holding; vols
// follows the order of Holdings
func (a *Allocation) SetVolatilities(vols []float64) error {
	if len(vols) != len(a.Holdings) {
		return fmt.Errorf("%w: %d holdings, %d volatilities", ErrLengthMismatch, len(a.Holdings), len(vols))
	}
	for idx, vol := range vols {
		a.Holdings[idx].Volatility = vol
	}
	return nil
}

// Table renders the allocation as an ASCII table followed by the portfolio statistics
func (a *Allocation) Table() string {
	s := &strings.Builder{}

	header := []string{"Symbol", "Weight (%)", "Amount", "Volatility (%)"}
	if a.MinVolatility != nil {
		header = append(header, "Min Vol Weight (%)")
	}

	table := tablewriter.NewWriter(s)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	var totalPct, totalAmount float64
	for idx, holding := range a.Holdings {
		row := []string{
			holding.Symbol,
			fmt.Sprintf("%.2f", holding.WeightPct),
			fmt.Sprintf("%.2f", holding.Amount),
			fmt.Sprintf("%.2f", holding.Volatility*100),
		}
		if a.MinVolatility != nil && idx < len(a.MinVolatility.Weights) {
			row = append(row, fmt.Sprintf("%.2f", Round(a.MinVolatility.Weights[idx]*100, 2)))
		}
		table.Append(row)
		totalPct += holding.WeightPct
		totalAmount += holding.Amount
	}

	footer := []string{"Total", fmt.Sprintf("%.2f", totalPct), fmt.Sprintf("%.2f", totalAmount), ""}
	if a.MinVolatility != nil {
		footer = append(footer, "")
	}
	table.SetFooter(footer)
	table.Render()

	fmt.Fprintf(s, "\nExpected Return: %.2f%%\n", a.ExpectedReturn*100)
	fmt.Fprintf(s, "Volatility:      %.2f%%\n", a.Volatility*100)
	fmt.Fprintf(s, "Sharpe Ratio:    %.4f\n", a.Sharpe)

	if a.MinVolatility != nil {
		fmt.Fprintf(s, "\nMinimum Volatility Portfolio\n")
		fmt.Fprintf(s, "Expected Return: %.2f%%\n", a.MinVolatility.ExpectedReturn*100)
		fmt.Fprintf(s, "Volatility:      %.2f%%\n", a.MinVolatility.Volatility*100)
		fmt.Fprintf(s, "Sharpe Ratio:    %.4f\n", a.MinVolatility.Sharpe)
	}

	if len(a.Omitted) > 0 {
		fmt.Fprintf(s, "Omitted:         %s\n", strings.Join(a.Omitted, ", "))
	}

	return s.String()
}

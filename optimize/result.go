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

package optimize

import "math"

// Sample is a single randomly drawn portfolio and its risk/return profile
type Sample struct {
	Weights    []float64 `json:"weights"`
	Return     float64   `json:"return"`
	Volatility float64   `json:"volatility"`
	Sharpe     float64   `json:"sharpe"`
}

// Defined reports whether the sample has a Sharpe ratio; samples with zero
// volatility do not and never participate in selection
func (s Sample) Defined() bool {
	return !math.IsNaN(s.Sharpe)
}

// Result is the outcome of a single search
type Result struct {
	// Population holds every drawn sample in draw order, including those
	// with an undefined Sharpe ratio
	Population []Sample

	Best      Sample
	BestIndex int

	MinVolatility      Sample
	MinVolatilityIndex int

	// Feasible is the number of samples with a defined Sharpe ratio
	Feasible int
}

// Defined returns the samples of the population that have a Sharpe ratio
func (r *Result) Defined() []Sample {
	res := make([]Sample, 0, r.Feasible)
	for _, s := range r.Population {
		if s.Defined() {
			res = append(res, s)
		}
	}
	return res
}

// selectOptimal scans the population for the maximum Sharpe ratio and the
// minimum volatility. Ties keep the first occurrence. Returns
// ErrNoFeasiblePortfolio when no sample has a defined Sharpe ratio.
func selectOptimal(population []Sample) (*Result, error) {
	res := &Result{
		Population:         population,
		BestIndex:          -1,
		MinVolatilityIndex: -1,
	}

	for idx, s := range population {
		if !s.Defined() {
			continue
		}
		res.Feasible++

		if res.BestIndex == -1 || s.Sharpe > population[res.BestIndex].Sharpe {
			res.BestIndex = idx
		}

		if res.MinVolatilityIndex == -1 || s.Volatility < population[res.MinVolatilityIndex].Volatility {
			res.MinVolatilityIndex = idx
		}
	}

	if res.Feasible == 0 {
		return nil, ErrNoFeasiblePortfolio
	}

	res.Best = population[res.BestIndex]
	res.MinVolatility = population[res.MinVolatilityIndex]

	return res, nil
}

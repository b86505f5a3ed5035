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

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PortfolioReturn computes the expected return of a portfolio as the weighted
// sum of the per-asset expected returns
func PortfolioReturn(weights, meanReturns []float64) float64 {
	return floats.Dot(weights, meanReturns)
}

// PortfolioVolatility computes the standard deviation of the portfolio,
// sqrt(w' Σ w). Negative variances caused by rounding are clamped to 0.
func PortfolioVolatility(weights []float64, cov mat.Symmetric) float64 {
	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, cov, w)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// SharpeRatio The ratio is the average return earned in excess of the risk-free
// rate per unit of volatility or total risk.
//
// Sharpe = (Rp - Rf) / σp
//
// The ratio is undefined when volatility is zero; in that case NaN and false
// are returned.
func SharpeRatio(ret, volatility, riskFreeRate float64) (float64, bool) {
	if volatility == 0 {
		return math.NaN(), false
	}
	return (ret - riskFreeRate) / volatility, true
}

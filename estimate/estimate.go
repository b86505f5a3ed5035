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

// Package estimate derives annualized expected returns and covariances from
// an aligned table of closing prices.
package estimate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultAnnualizationFactor is the number of trading days in a year and is
// the correct factor for daily closing prices
const DefaultAnnualizationFactor = 252.0

// Estimator converts per-period price changes into annualized statistics
type Estimator struct {
	AnnualizationFactor float64
}

// Estimate holds the annualized statistics of an asset universe. MeanReturns
// and both axes of Covariance follow the order of Symbols.
type Estimate struct {
	Symbols      []string
	MeanReturns  []float64
	Covariance   *mat.SymDense
	Observations int
	Start        time.Time
	End          time.Time
}

// New creates an estimator that annualizes with factor, e.g. 252 for daily data, 52 for weekly
func New(factor float64) (*Estimator, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidAnnualizationFactor, factor)
	}
	return &Estimator{AnnualizationFactor: factor}, nil
}

// Estimate computes the annualized mean return of each column in prices and
// the annualized sample covariance between columns. prices is not modified.
func (e *Estimator) Estimate(ctx context.Context, prices *dataframe.DataFrame) (*Estimate, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "estimate.Estimate")
	defer span.End()

	if e.AnnualizationFactor <= 0 {
		return nil, ErrInvalidAnnualizationFactor
	}

	// rows with a missing price for any asset are removed from all assets
	aligned := prices.Copy().Drop(math.NaN())

	span.SetAttributes(
		attribute.Int("NumAssets", aligned.ColCount()),
		attribute.Int("NumDates", aligned.Len()),
	)

	if aligned.ColCount() < 2 {
		span.SetStatus(codes.Error, ErrInsufficientAssets.Error())
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientAssets, aligned.ColCount())
	}

	for colIdx, col := range aligned.Vals {
		for _, price := range col {
			if price <= 0 || math.IsInf(price, 0) {
				span.SetStatus(codes.Error, ErrInvalidPrice.Error())
				return nil, fmt.Errorf("%w: %s has price %f", ErrInvalidPrice, aligned.ColNames[colIdx], price)
			}
		}
	}

	rets := aligned.PctChange()

	// the sample covariance needs at least two observations
	if rets.Len() < 2 {
		span.SetStatus(codes.Error, ErrInsufficientData.Error())
		return nil, fmt.Errorf("%w: %d returns from %d dates", ErrInsufficientData, rets.Len(), aligned.Len())
	}

	meanReturns := rets.Mean()
	floats.Scale(e.AnnualizationFactor, meanReturns)

	numAssets := rets.ColCount()
	cov := mat.NewSymDense(numAssets, nil)
	stat.CovarianceMatrix(cov, rets.Matrix(), nil)
	cov.ScaleSym(e.AnnualizationFactor, cov)

	log.Debug().
		Strs("Symbols", aligned.ColNames).
		Int("Observations", rets.Len()).
		Time("Start", aligned.Start()).
		Time("End", aligned.End()).
		Floats64("MeanReturns", meanReturns).
		Msg("estimated annualized returns and covariance")

	return &Estimate{
		Symbols:      aligned.ColNames,
		MeanReturns:  meanReturns,
		Covariance:   cov,
		Observations: rets.Len(),
		Start:        aligned.Start(),
		End:          aligned.End(),
	}, nil
}

// Volatilities returns the annualized standard deviation of each asset
func (est *Estimate) Volatilities() []float64 {
	vols := make([]float64, len(est.Symbols))
	for idx := range vols {
		vols[idx] = math.Sqrt(math.Max(est.Covariance.At(idx, idx), 0))
	}
	return vols
}

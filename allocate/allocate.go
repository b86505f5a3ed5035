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

// Package allocate runs the full pipeline that turns a list of symbols into
// an investment allocation: download prices, estimate annualized returns and
// risk, search for the maximum Sharpe portfolio and size each position.
package allocate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/data"
	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/estimate"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/penny-vault/pv-allocate/optimize"
	"github.com/penny-vault/pv-allocate/report"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultInvestment = 100000.0

// Request describes a single optimization
type Request struct {
	Symbols      []string
	Investment   float64
	Samples      int
	RiskFreeRate float64

	// Seed makes the search reproducible; 0 seeds from the clock
	Seed    uint64
	Workers int

	// Begin and End bound the price history; a zero value is unbounded
	Begin time.Time
	End   time.Time

	// AnnualizationFactor defaults to estimate.DefaultAnnualizationFactor
	AnnualizationFactor float64
}

// Allocator computes allocations from the prices served by a data manager
type Allocator struct {
	manager *data.Manager
}

func New(manager *data.Manager) *Allocator {
	return &Allocator{
		manager: manager,
	}
}

// Run computes the maximum Sharpe allocation for req. Symbols without price
// data are dropped and listed in the allocation's Omitted field.
func (a *Allocator) Run(ctx context.Context, req Request) (*report.Allocation, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "allocate.Run")
	defer span.End()

	symbols := common.NormalizeSymbols(req.Symbols)
	span.SetAttributes(attribute.StringSlice("Symbols", symbols))

	if len(symbols) < 2 {
		span.SetStatus(codes.Error, "not enough symbols")
		return nil, fmt.Errorf("%w: at least 2 symbols are required, got %d", estimate.ErrInsufficientAssets, len(symbols))
	}

	if req.Investment <= 0 || math.IsNaN(req.Investment) || math.IsInf(req.Investment, 0) {
		span.SetStatus(codes.Error, report.ErrInvalidInvestment.Error())
		return nil, fmt.Errorf("%w: got %f", report.ErrInvalidInvestment, req.Investment)
	}

	factor := req.AnnualizationFactor
	if factor == 0 {
		factor = estimate.DefaultAnnualizationFactor
	}
	estimator, err := estimate.New(factor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid annualization factor")
		return nil, err
	}

	subLog := log.With().Strs("Symbols", symbols).Time("Begin", req.Begin).Time("End", req.End).Logger()

	prices, omitted, err := a.manager.PriceTable(ctx, symbols, req.Begin, req.End)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not load prices")
		if errors.Is(err, dataframe.ErrNoCommonDates) {
			return nil, fmt.Errorf("%w: %s", estimate.ErrInsufficientData, err.Error())
		}
		return nil, err
	}

	est, err := estimator.Estimate(ctx, prices)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not estimate returns")
		subLog.Warn().Err(err).Strs("Omitted", omitted).Msg("could not estimate returns")
		return nil, err
	}

	opts := optimize.DefaultOptions()
	if req.Samples != 0 {
		opts.Samples = req.Samples
	}
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	opts.RiskFreeRate = req.RiskFreeRate
	opts.Source = optimize.NewSource(req.Seed)

	res, err := optimize.Search(ctx, est.MeanReturns, est.Covariance, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "portfolio search failed")
		return nil, err
	}

	alloc, err := report.NewAllocation(est.Symbols, res.Best.Weights, req.Investment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build allocation")
		return nil, err
	}

	if err := alloc.SetVolatilities(est.Volatilities()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build allocation")
		return nil, err
	}

	alloc.ExpectedReturn = res.Best.Return
	alloc.Volatility = res.Best.Volatility
	alloc.Sharpe = res.Best.Sharpe
	alloc.RiskFreeRate = req.RiskFreeRate
	alloc.MinVolatility = &report.Portfolio{
		Weights:        res.MinVolatility.Weights,
		ExpectedReturn: res.MinVolatility.Return,
		Volatility:     res.MinVolatility.Volatility,
		Sharpe:         res.MinVolatility.Sharpe,
	}
	alloc.Provider = a.manager.Provider().DataType()
	alloc.Samples = len(res.Population)
	alloc.Feasible = res.Feasible
	alloc.Omitted = omitted
	alloc.Start = est.Start
	alloc.End = est.End

	subLog.Info().
		Str("RunID", alloc.RunID.String()).
		Float64("ExpectedReturn", alloc.ExpectedReturn).
		Float64("Volatility", alloc.Volatility).
		Float64("Sharpe", alloc.Sharpe).
		Float64("MinVolatility", alloc.MinVolatility.Volatility).
		Int("Observations", est.Observations).
		Msg("computed optimal allocation")

	return alloc, nil
}

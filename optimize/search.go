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

// Package optimize searches the long-only, fully-invested simplex for the
// portfolio with the highest Sharpe ratio by Monte Carlo sampling.
package optimize

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultSamples   = 5000
	DefaultBatchSize = 500
)

// Options control a single search
type Options struct {
	// Samples is the number of random portfolios to draw
	Samples int

	// RiskFreeRate is subtracted from the portfolio return before computing the Sharpe ratio
	RiskFreeRate float64

	// Source seeds the search. Identical sources produce identical results regardless of
	// Workers. If nil a source seeded from the current time is used.
	Source rand.Source

	// Workers is the maximum number of batches evaluated concurrently; defaults to runtime.NumCPU()
	Workers int

	// BatchSize is the number of samples drawn from each independent random stream
	BatchSize int
}

// DefaultOptions returns the options used when the caller has no preference
func DefaultOptions() Options {
	return Options{
		Samples:   DefaultSamples,
		Workers:   runtime.NumCPU(),
		BatchSize: DefaultBatchSize,
	}
}

// NewSource returns a random source for the given seed; a seed of 0 means seed from the clock
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewSource(seed)
}

// Search draws opts.Samples random long-only portfolios, scores each by its
// Sharpe ratio and returns the full population along with the best portfolio.
// Inputs are not modified.
func Search(ctx context.Context, meanReturns []float64, cov mat.Symmetric, opts Options) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "optimize.Search")
	defer span.End()

	if err := validate(meanReturns, cov, opts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid search parameters")
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.Source == nil {
		opts.Source = NewSource(0)
	}

	numAssets := len(meanReturns)
	numBatches := (opts.Samples + opts.BatchSize - 1) / opts.BatchSize

	span.SetAttributes(
		attribute.Int("NumAssets", numAssets),
		attribute.Int("Samples", opts.Samples),
		attribute.Int("Batches", numBatches),
	)

	subLog := log.With().Int("NumAssets", numAssets).Int("Samples", opts.Samples).Int("Batches", numBatches).Int("Workers", opts.Workers).Logger()
	subLog.Debug().Msg("starting portfolio search")
	start := time.Now()

	// every batch gets its own stream; seeds are drawn up front so the result does not
	// depend on the order in which batches are scheduled
	master := rand.New(opts.Source)
	seeds := make([]uint64, numBatches)
	for idx := range seeds {
		seeds[idx] = master.Uint64()
	}

	population := make([]Sample, opts.Samples)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(opts.Workers)

	for batch := 0; batch < numBatches; batch++ {
		if grpCtx.Err() != nil {
			break
		}

		batch := batch
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(seeds[batch]))
			lo := batch * opts.BatchSize
			hi := lo + opts.BatchSize
			if hi > opts.Samples {
				hi = opts.Samples
			}

			for idx := lo; idx < hi; idx++ {
				weights := randomWeights(rng, numAssets)
				population[idx] = score(weights, meanReturns, cov, opts.RiskFreeRate)
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search aborted")
		return nil, err
	}

	// a cancellation that raced the last batch still aborts the search
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search aborted")
		return nil, err
	}

	res, err := selectOptimal(population)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no feasible portfolio")
		subLog.Warn().Err(err).Msg("portfolio search found no feasible portfolio")
		return nil, err
	}

	subLog.Debug().Dur("Elapsed", time.Since(start)).Int("Feasible", res.Feasible).Float64("BestSharpe", res.Best.Sharpe).Msg("portfolio search complete")

	return res, nil
}

// randomWeights draws n independent values uniformly from (0, 1) and normalizes them to sum to 1.
// The resulting distribution over the simplex is not uniform.
func randomWeights(rng *rand.Rand, n int) []float64 {
	weights := make([]float64, n)
	for idx := range weights {
		val := rng.Float64()
		for val == 0 {
			val = rng.Float64()
		}
		weights[idx] = val
	}

	floats.Scale(1.0/floats.Sum(weights), weights)
	return weights
}

// score computes the return, volatility and Sharpe ratio of a weight vector
func score(weights, meanReturns []float64, cov mat.Symmetric, riskFreeRate float64) Sample {
	ret := PortfolioReturn(weights, meanReturns)
	vol := PortfolioVolatility(weights, cov)
	sharpe, _ := SharpeRatio(ret, vol, riskFreeRate)

	return Sample{
		Weights:    weights,
		Return:     ret,
		Volatility: vol,
		Sharpe:     sharpe,
	}
}

func validate(meanReturns []float64, cov mat.Symmetric, opts Options) error {
	numAssets := len(meanReturns)
	if numAssets < 2 {
		return fmt.Errorf("%w: got %d", ErrInsufficientAssets, numAssets)
	}

	if cov == nil {
		return ErrDimensionMismatch
	}

	rows, cols := cov.Dims()
	if rows != numAssets || cols != numAssets {
		return fmt.Errorf("%w: %d returns, %dx%d covariance", ErrDimensionMismatch, numAssets, rows, cols)
	}

	if opts.Samples <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleCount, opts.Samples)
	}

	if math.IsNaN(opts.RiskFreeRate) || math.IsInf(opts.RiskFreeRate, 0) {
		return ErrNonFiniteInput
	}

	for ii := 0; ii < numAssets; ii++ {
		if math.IsNaN(meanReturns[ii]) || math.IsInf(meanReturns[ii], 0) {
			return ErrNonFiniteInput
		}
		for jj := 0; jj < numAssets; jj++ {
			v := cov.At(ii, jj)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrNonFiniteInput
			}
		}
	}

	return nil
}

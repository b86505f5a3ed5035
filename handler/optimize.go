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

package handler

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-allocate/allocate"
	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/data"
	"github.com/penny-vault/pv-allocate/estimate"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/penny-vault/pv-allocate/optimize"
	"github.com/penny-vault/pv-allocate/report"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// DefaultLookback is the number of calendar days of history used when a request has no begin date
const DefaultLookback = 365

// MaxSamples bounds the work a single request may ask for
const MaxSamples = 1_000_000

type optimizeRequest struct {
	Symbols      []string `json:"symbols"`
	Investment   float64  `json:"investment"`
	Samples      int      `json:"samples"`
	RiskFreeRate float64  `json:"riskFreeRate"`
	Seed         uint64   `json:"seed"`
	Begin        string   `json:"begin"`
	End          string   `json:"end"`
}

// Optimizer serves allocation requests
type Optimizer struct {
	allocator *allocate.Allocator
}

func NewOptimizer(allocator *allocate.Allocator) *Optimizer {
	return &Optimizer{
		allocator: allocator,
	}
}

// Optimize computes the maximum Sharpe ratio allocation of the requested symbols
func (o *Optimizer) Optimize(c *fiber.Ctx) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(c.UserContext(), "handler.Optimize")
	defer span.End()
	span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

	params := optimizeRequest{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		log.Warn().Err(err).Msg("bad optimize request")
		span.SetStatus(codes.Error, "bad request body")
		return fiber.NewError(fiber.StatusBadRequest, "request body must be a JSON object")
	}

	req, err := params.toRequest(time.Now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	alloc, err := o.allocator.Run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "optimization failed")
		return errorResponse(err)
	}

	return c.JSON(alloc)
}

func (params optimizeRequest) toRequest(now time.Time) (allocate.Request, error) {
	symbols := common.NormalizeSymbols(params.Symbols)
	if len(symbols) < 2 {
		return allocate.Request{}, errors.New("at least 2 symbols are required")
	}

	investment := params.Investment
	if investment == 0 {
		investment = allocate.DefaultInvestment
	}
	if investment < 0 {
		return allocate.Request{}, report.ErrInvalidInvestment
	}

	samples := params.Samples
	if samples == 0 {
		samples = optimize.DefaultSamples
	}
	if samples < 0 || samples > MaxSamples {
		return allocate.Request{}, optimize.ErrInvalidSampleCount
	}

	tz := common.GetTimezone()
	end := now.In(tz)
	end = time.Date(end.Year(), end.Month(), end.Day(), 16, 0, 0, 0, tz)
	if params.End != "" {
		dt, err := time.ParseInLocation("2006-01-02", params.End, tz)
		if err != nil {
			return allocate.Request{}, errors.New("end must be formatted as YYYY-MM-DD")
		}
		end = dt.Add(16 * time.Hour)
	}

	begin := end.AddDate(0, 0, -DefaultLookback)
	if params.Begin != "" {
		dt, err := time.ParseInLocation("2006-01-02", params.Begin, tz)
		if err != nil {
			return allocate.Request{}, errors.New("begin must be formatted as YYYY-MM-DD")
		}
		begin = dt
	}

	if end.Before(begin) {
		return allocate.Request{}, data.ErrInvalidTimeRange
	}

	return allocate.Request{
		Symbols:      symbols,
		Investment:   investment,
		Samples:      samples,
		RiskFreeRate: params.RiskFreeRate,
		Seed:         params.Seed,
		Begin:        begin,
		End:          end,
	}, nil
}

// errorResponse maps pipeline failures to HTTP status codes
func errorResponse(err error) error {
	switch {
	case errors.Is(err, estimate.ErrInsufficientAssets),
		errors.Is(err, estimate.ErrInsufficientData),
		errors.Is(err, estimate.ErrInvalidPrice),
		errors.Is(err, optimize.ErrInsufficientAssets),
		errors.Is(err, optimize.ErrNoFeasiblePortfolio):
		log.Warn().Err(err).Msg("cannot optimize requested portfolio")
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, report.ErrInvalidInvestment),
		errors.Is(err, optimize.ErrInvalidSampleCount),
		errors.Is(err, data.ErrInvalidTimeRange):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("optimization failed")
		return fiber.ErrInternalServerError
	}
}

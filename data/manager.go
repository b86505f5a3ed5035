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

package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Manager fetches price histories from a provider, consulting the cache first
type Manager struct {
	provider Provider
	cache    *Cache
}

// NewManager create a new data manager; cache may be nil
func NewManager(provider Provider, cache *Cache) *Manager {
	return &Manager{
		provider: provider,
		cache:    cache,
	}
}

// Provider returns the provider prices are fetched from
func (m *Manager) Provider() Provider {
	return m.provider
}

// Symbols lists the securities the provider can serve. Only providers backed
// by a fixed set of securities, such as a folder of CSV files, support listing.
func (m *Manager) Symbols(ctx context.Context) ([]string, error) {
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	lister, ok := m.provider.(SymbolLister)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingUnsupported, m.provider.DataType())
	}

	return lister.Symbols(ctx)
}

// PriceTable downloads symbols and joins them on their common dates. The columns
// of the result follow the order of symbols; symbols without data are left out
// and returned as omitted.
func (m *Manager) PriceTable(ctx context.Context, symbols []string, begin, end time.Time) (*dataframe.DataFrame, []string, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.PriceTable")
	defer span.End()

	if m.provider == nil {
		return nil, nil, ErrNoProvider
	}

	span.SetAttributes(
		attribute.StringSlice("Symbols", symbols),
		attribute.String("Provider", m.provider.DataType()),
	)

	if !begin.IsZero() && !end.IsZero() && end.Before(begin) {
		span.SetStatus(codes.Error, ErrInvalidTimeRange.Error())
		return nil, nil, ErrInvalidTimeRange
	}

	dfMap, errs := m.getMultipleData(ctx, begin, end, symbols...)

	available := make([]string, 0, len(symbols))
	omitted := make([]string, 0, len(errs))
	for _, symbol := range symbols {
		if _, ok := dfMap[strings.ToUpper(symbol)]; ok {
			available = append(available, strings.ToUpper(symbol))
		} else {
			omitted = append(omitted, strings.ToUpper(symbol))
		}
	}

	if len(omitted) > 0 {
		log.Warn().Strs("Omitted", omitted).Msg("some symbols have no price data and were skipped")
	}

	// nothing to join; the estimator reports the shortage
	if len(available) == 0 {
		return &dataframe.DataFrame{Dates: []time.Time{}, ColNames: []string{}, Vals: [][]float64{}}, omitted, nil
	}

	df, err := dfMap.Join(available...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not join price series")
		return nil, omitted, err
	}

	span.SetAttributes(attribute.Int("NumDates", df.Len()))
	return df, omitted, nil
}

func (m *Manager) getMultipleData(ctx context.Context, begin, end time.Time, symbols ...string) (dataframe.Map, []error) {
	res := make(dataframe.Map, len(symbols))
	ch := make(chan quoteResult)

	for ii := range symbols {
		go func(symbol string) {
			df, err := m.getData(ctx, symbol, begin, end)
			ch <- quoteResult{
				Ticker: symbol,
				Data:   df,
				Err:    err,
			}
		}(strings.ToUpper(symbols[ii]))
	}

	errs := []error{}
	for range symbols {
		v := <-ch
		if v.Err == nil {
			res[v.Ticker] = v.Data
		} else {
			log.Warn().Err(v.Err).Str("Ticker", v.Ticker).Msg("cannot download ticker data")
			errs = append(errs, fmt.Errorf("%s: %w", v.Ticker, v.Err))
		}
	}

	return res, errs
}

func (m *Manager) getData(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error) {
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	if !begin.IsZero() && !end.IsZero() && end.Before(begin) {
		return nil, ErrInvalidTimeRange
	}

	subLog := log.With().Str("Symbol", symbol).Str("Provider", m.provider.DataType()).Logger()

	var key string
	if m.cache != nil {
		key = CacheKey(m.provider.DataType(), symbol, begin, end)
		df, err := m.cache.Get(ctx, key)
		if err == nil {
			subLog.Debug().Msg("price series served from cache")
			return df, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			subLog.Warn().Err(err).Msg("cache read failed")
		}
	}

	df, err := m.provider.GetDataForPeriod(ctx, symbol, begin, end)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, key, df); err != nil {
			subLog.Warn().Err(err).Msg("cache write failed")
		}
	}

	return df, nil
}

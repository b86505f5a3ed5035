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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type yahoo struct {
	suffix string
	client *http.Client
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				Currency             string `json:"currency"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

var yahooAPI = "https://query1.finance.yahoo.com"

// NewYahoo creates a provider backed by the Yahoo Finance chart API. suffix
// names the exchange (e.g. ".NS" for the National Stock Exchange of India) and
// is appended to symbols that do not already carry it.
func NewYahoo(suffix string) *yahoo {
	return &yahoo{
		suffix: strings.ToUpper(suffix),
		client: http.DefaultClient,
	}
}

func (y *yahoo) DataType() string {
	return ProviderYahoo
}

// GetDataForPeriod downloads daily closing prices of symbol between begin and end (inclusive).
// The returned column is named after symbol without the exchange suffix.
func (y *yahoo) GetDataForPeriod(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.GetDataForPeriod")
	defer span.End()

	symbol = strings.ToUpper(symbol)
	ticker := symbol
	if y.suffix != "" && !strings.HasSuffix(ticker, y.suffix) {
		ticker += y.suffix
	}

	subLog := log.With().Str("Symbol", symbol).Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	if end.IsZero() {
		end = time.Now()
	}

	var period1 int64
	if !begin.IsZero() {
		period1 = begin.Unix()
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(period1, 10))
	// period2 is exclusive
	params.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", yahooAPI, url.PathEscape(ticker), params.Encode())
	span.SetAttributes(
		attribute.String("Url", endpoint),
		attribute.String("Symbol", symbol),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build request")
		return nil, err
	}
	req.Header.Set("User-Agent", "pvallocate")

	resp, err := y.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "yahoo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read yahoo body"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
		msg := "yahoo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Bytes("Body", body).Msg(msg)
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ticker)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	chart := yahooChartResponse{}
	if err := json.Unmarshal(body, &chart); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	if chart.Chart.Error != nil {
		span.SetStatus(codes.Error, chart.Chart.Error.Description)
		subLog.Warn().Str("Code", chart.Chart.Error.Code).Str("Description", chart.Chart.Error.Description).Msg("yahoo returned an error")
		return nil, fmt.Errorf("%w: %s: %s", ErrNotFound, ticker, chart.Chart.Error.Description)
	}

	if len(chart.Chart.Result) == 0 {
		span.SetStatus(codes.Error, "no results returned")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}

	result := chart.Chart.Result[0]

	// prefer split and dividend adjusted closes when the response has them
	var closes []*float64
	if len(result.Indicators.AdjClose) > 0 {
		closes = result.Indicators.AdjClose[0].AdjClose
	} else if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	exchangeTz := time.UTC
	if result.Meta.ExchangeTimezoneName != "" {
		if tz, err := time.LoadLocation(result.Meta.ExchangeTimezoneName); err == nil {
			exchangeTz = tz
		} else {
			subLog.Warn().Err(err).Str("Timezone", result.Meta.ExchangeTimezoneName).Msg("unknown exchange timezone; using UTC")
		}
	}

	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, 0, len(result.Timestamp)),
		ColNames: []string{symbol},
		Vals:     [][]float64{make([]float64, 0, len(result.Timestamp))},
	}

	for idx, ts := range result.Timestamp {
		if idx >= len(closes) || closes[idx] == nil {
			continue
		}

		dt := marketClose(time.Unix(ts, 0).In(exchangeTz))
		last := df.Len() - 1
		switch {
		case last >= 0 && dt.Equal(df.Dates[last]):
			// a session still trading is reported as an extra bar on the same day
			df.Vals[0][last] = *closes[idx]
		case last >= 0 && dt.Before(df.Dates[last]):
			subLog.Debug().Time("Date", dt).Msg("skipping out of order bar")
		default:
			df.InsertRow(dt, *closes[idx])
		}
	}

	if df.Len() == 0 {
		span.SetStatus(codes.Error, "no results returned")
		subLog.Warn().Msg("yahoo returned no prices")
		return nil, fmt.Errorf("%w: %s has no prices in range", ErrNotFound, ticker)
	}

	subLog.Debug().Int("NumRows", df.Len()).Msg("loaded prices from yahoo")
	return df, nil
}

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
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type tiingo struct {
	apikey string
	client *http.Client
}

type tiingoJSONResponse struct {
	Date        string  `json:"date"`
	Close       float64 `json:"close"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Open        float64 `json:"open"`
	Volume      int64   `json:"volume"`
	AdjClose    float64 `json:"adjClose"`
	AdjHigh     float64 `json:"adjHigh"`
	AdjLow      float64 `json:"adjLow"`
	AdjOpen     float64 `json:"adjOpen"`
	AdjVolume   int64   `json:"adjVolume"`
	DivCash     float64 `json:"divCash"`
	SplitFactor float64 `json:"splitFactor"`
}

var tiingoAPI = "https://api.tiingo.com"

// NewTiingo Create a new Tiingo data provider
func NewTiingo(key string) *tiingo {
	return &tiingo{
		apikey: key,
		client: http.DefaultClient,
	}
}

func (t *tiingo) DataType() string {
	return ProviderTiingo
}

// GetDataForPeriod downloads the daily adjusted close of symbol between begin and end (inclusive)
func (t *tiingo) GetDataForPeriod(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.GetDataForPeriod")
	defer span.End()

	symbol = strings.ToUpper(symbol)
	subLog := log.With().Str("Symbol", symbol).Time("Begin", begin).Time("End", end).Logger()

	params := url.Values{}
	if !begin.IsZero() {
		params.Set("startDate", begin.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("endDate", end.Format("2006-01-02"))
	}

	endpoint := fmt.Sprintf("%s/tiingo/daily/%s/prices", tiingoAPI, url.PathEscape(symbol))
	span.SetAttributes(
		attribute.String("Url", endpoint+"?"+params.Encode()),
		attribute.String("Symbol", symbol),
	)

	// the token is added after the span attribute so it never ends up in a trace
	params.Set("token", t.apikey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build request")
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "tiingo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read tiingo body"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
		msg := "tiingo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Bytes("Body", body).Msg(msg)
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	quotes := []tiingoJSONResponse{}
	if err := json.Unmarshal(body, &quotes); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	tz := common.GetTimezone()
	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, 0, len(quotes)),
		ColNames: []string{symbol},
		Vals:     [][]float64{make([]float64, 0, len(quotes))},
	}

	for _, quote := range quotes {
		dtParts := strings.Split(quote.Date, "T")
		dt, err := time.ParseInLocation("2006-01-02", dtParts[0], tz)
		if err != nil {
			span.RecordError(err)
			msg := "cannot parse date string"
			span.SetStatus(codes.Error, msg)
			subLog.Error().Err(err).Str("DateStr", quote.Date).Msg(msg)
			return nil, err
		}
		df.Dates = append(df.Dates, marketClose(dt))
		df.Vals[0] = append(df.Vals[0], quote.AdjClose)
	}

	if df.Len() == 0 {
		span.SetStatus(codes.Error, "no results returned")
		subLog.Warn().Msg("tiingo returned no prices")
		return nil, fmt.Errorf("%w: %s has no prices in range", ErrNotFound, symbol)
	}

	subLog.Debug().Int("NumRows", df.Len()).Msg("loaded prices from tiingo")
	return df.Sort(), nil
}

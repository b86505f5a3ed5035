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
	"strings"
	"time"

	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/spf13/viper"
)

// Provider returns the closing price history of a single security. The
// returned dataframe has one column named after the requested symbol.
type Provider interface {
	DataType() string
	GetDataForPeriod(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error)
}

// SymbolLister is implemented by providers that serve a fixed set of securities
type SymbolLister interface {
	Symbols(ctx context.Context) ([]string, error)
}

const (
	ProviderTiingo = "tiingo"
	ProviderYahoo  = "yahoo"
	ProviderCSV    = "csv"
)

type quoteResult struct {
	Ticker string
	Data   *dataframe.DataFrame
	Err    error
}

// NewProvider creates the named provider from the current configuration
func NewProvider(kind string) (Provider, error) {
	switch strings.ToLower(kind) {
	case ProviderTiingo:
		return NewTiingo(viper.GetString("tiingo.token")), nil
	case ProviderYahoo:
		return NewYahoo(viper.GetString("yahoo.suffix")), nil
	case ProviderCSV:
		return NewCSVFile(viper.GetString("csv.dir")), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, kind)
	}
}

// marketClose maps the calendar day of dt to 4pm in New York so that series
// from different sources share the same date index
func marketClose(dt time.Time) time.Time {
	return time.Date(dt.Year(), dt.Month(), dt.Day(), 16, 0, 0, 0, common.GetTimezone())
}

// trimToRange restricts df to [begin, end]; a zero bound is unbounded
func trimToRange(df *dataframe.DataFrame, begin, end time.Time) *dataframe.DataFrame {
	if begin.IsZero() && end.IsZero() {
		return df
	}
	if end.IsZero() {
		end = df.End()
	}
	return df.Trim(begin, end)
}

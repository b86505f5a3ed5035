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

package dataframe

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Join performs an inner join on the date index of the requested dataframes and returns a single
// dataframe with one column per entry of order. Rows that have a NaN in any column are removed
// from every column. Each dataframe in the map must contain a column named after its key.
func (dfMap Map) Join(order ...string) (*DataFrame, error) {
	res := &DataFrame{
		Dates:    []time.Time{},
		ColNames: make([]string, 0, len(order)),
		Vals:     make([][]float64, 0, len(order)),
	}

	if len(order) == 0 {
		return res, nil
	}

	// index every series by its date
	lookup := make([]map[int64]float64, len(order))
	for idx, name := range order {
		df, ok := dfMap[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}

		col := df.Column(name)
		if col == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}

		lookup[idx] = make(map[int64]float64, df.Len())
		for rowIdx, dt := range df.Dates {
			if math.IsNaN(col[rowIdx]) {
				continue
			}
			lookup[idx][dt.Unix()] = col[rowIdx]
		}
	}

	// keep the dates present in every series
	first := dfMap[order[0]]
	dates := make([]time.Time, 0, first.Len())
	seen := make(map[int64]bool, first.Len())
	for _, dt := range first.Dates {
		key := dt.Unix()
		if seen[key] {
			continue
		}
		seen[key] = true

		inAll := true
		for _, series := range lookup {
			if _, ok := series[key]; !ok {
				inAll = false
				break
			}
		}

		if inAll {
			dates = append(dates, dt)
		}
	}

	if len(dates) == 0 {
		return nil, ErrNoCommonDates
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	res.Dates = dates
	for idx, name := range order {
		col := make([]float64, len(dates))
		for rowIdx, dt := range dates {
			col[rowIdx] = lookup[idx][dt.Unix()]
		}
		res.ColNames = append(res.ColNames, name)
		res.Vals = append(res.Vals, col)
	}

	return res, nil
}

// Keys returns the symbols stored in the map in sorted order
func (dfMap Map) Keys() []string {
	keys := make([]string, 0, len(dfMap))
	for k := range dfMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

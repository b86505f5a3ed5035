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
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Matrix returns the values of the dataframe as a gonum matrix with one row per date and
// one column per dataframe column
func (df *DataFrame) Matrix() *mat.Dense {
	if df.Len() == 0 || df.ColCount() == 0 {
		return &mat.Dense{}
	}

	m := mat.NewDense(df.Len(), df.ColCount(), nil)
	for colIdx := range df.ColNames {
		m.SetCol(colIdx, df.Vals[colIdx])
	}
	return m
}

// Mean returns the arithmetic mean of each column
func (df *DataFrame) Mean() []float64 {
	res := make([]float64, df.ColCount())
	for colIdx := range df.ColNames {
		if len(df.Vals[colIdx]) == 0 {
			res[colIdx] = math.NaN()
			continue
		}
		res[colIdx] = stat.Mean(df.Vals[colIdx], nil)
	}
	return res
}

// PctChange computes the simple period over period change of each column,
// r[t] = x[t] / x[t-1] - 1, and returns a new dataframe. The first row has no
// prior value and is dropped so the result has one less row than df.
func (df *DataFrame) PctChange() *DataFrame {
	res := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Vals:     make([][]float64, len(df.ColNames)),
	}
	copy(res.ColNames, df.ColNames)

	if df.Len() < 2 {
		res.Dates = []time.Time{}
		for colIdx := range res.Vals {
			res.Vals[colIdx] = []float64{}
		}
		return res
	}

	res.Dates = make([]time.Time, df.Len()-1)
	copy(res.Dates, df.Dates[1:])

	for colIdx, col := range df.Vals {
		rets := make([]float64, len(col)-1)
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			rets[rowIdx-1] = col[rowIdx]/col[rowIdx-1] - 1.0
		}
		res.Vals[colIdx] = rets
	}

	return res
}

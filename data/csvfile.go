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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const csvMetadataFile = "stock_metadata.csv"

var csvDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// csvFile serves prices from a folder of CSV files. Each file holds either a
// single security, named after the file, or many securities distinguished by a
// symbol column. Every file needs a date and a close column.
type csvFile struct {
	dir string

	once   sync.Once
	series dataframe.Map
	err    error
}

type csvRow struct {
	date  time.Time
	close float64
}

// NewCSVFile creates a provider that reads the CSV files stored in dir. The
// folder is read the first time data is requested.
func NewCSVFile(dir string) *csvFile {
	return &csvFile{
		dir: dir,
	}
}

func (c *csvFile) DataType() string {
	return ProviderCSV
}

// Symbols lists the securities available in the folder
func (c *csvFile) Symbols(ctx context.Context) ([]string, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c.series.Keys(), nil
}

// GetDataForPeriod returns the closing prices of symbol between begin and end (inclusive)
func (c *csvFile) GetDataForPeriod(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	df, ok := c.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	res := trimToRange(df, begin, end).Copy()
	if res.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no prices in range", ErrNotFound, symbol)
	}
	return res, nil
}

func (c *csvFile) load(ctx context.Context) error {
	c.once.Do(func() {
		c.series, c.err = loadCSVFolder(ctx, c.dir)
	})
	return c.err
}

func loadCSVFolder(ctx context.Context, dir string) (dataframe.Map, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "csvFile.load")
	defer span.End()

	subLog := log.With().Str("Dir", dir).Logger()
	span.SetAttributes(attribute.String("Dir", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not read folder")
		subLog.Error().Err(err).Msg("could not read price folder")
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") || name == csvMetadataFile {
			continue
		}
		files = append(files, name)
	}

	if len(files) == 0 {
		span.SetStatus(codes.Error, ErrNoFiles.Error())
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, dir)
	}

	sort.Strings(files)

	rows := make(map[string][]csvRow)
	for _, name := range files {
		if err := readCSVFile(filepath.Join(dir, name), strings.TrimSuffix(name, ".csv"), rows); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "could not read csv file")
			subLog.Error().Err(err).Str("File", name).Msg("could not read csv file")
			return nil, err
		}
	}

	res := make(dataframe.Map, len(rows))
	for symbol, symbolRows := range rows {
		df := &dataframe.DataFrame{
			Dates:    make([]time.Time, len(symbolRows)),
			ColNames: []string{symbol},
			Vals:     [][]float64{make([]float64, len(symbolRows))},
		}
		for idx, row := range symbolRows {
			df.Dates[idx] = row.date
			df.Vals[0][idx] = row.close
		}
		res[symbol] = df.Sort()
	}

	span.SetAttributes(attribute.Int("NumFiles", len(files)), attribute.Int("NumSymbols", len(res)))
	subLog.Debug().Int("NumFiles", len(files)).Int("NumSymbols", len(res)).Msg("loaded csv price folder")

	return res, nil
}

// readCSVFile appends the rows of fn to rows, keyed by symbol. Rows with an
// empty or unparseable field are skipped.
func readCSVFile(fn, defaultSymbol string, rows map[string][]csvRow) error {
	fh, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		log.Warn().Str("File", fn).Msg("csv file is empty")
		return nil
	}
	if err != nil {
		return err
	}

	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	dateIdx, hasDate := cols["date"]
	closeIdx, hasClose := cols["close"]
	if !hasDate || !hasClose {
		return fmt.Errorf("%w: %s needs date and close columns", ErrMissingColumn, fn)
	}
	symbolIdx, hasSymbol := cols["symbol"]

	defaultSymbol = strings.ToUpper(strings.TrimSpace(defaultSymbol))
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if !completeRecord(record, len(header)) {
			skipped++
			continue
		}

		dt, err := parseCSVDate(record[dateIdx])
		if err != nil {
			skipped++
			continue
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[closeIdx]), 64)
		if err != nil {
			skipped++
			continue
		}

		symbol := defaultSymbol
		if hasSymbol {
			symbol = strings.ToUpper(strings.TrimSpace(record[symbolIdx]))
		}

		rows[symbol] = append(rows[symbol], csvRow{date: dt, close: price})
	}

	if skipped > 0 {
		log.Debug().Str("File", fn).Int("Skipped", skipped).Msg("dropped incomplete csv rows")
	}

	return nil
}

func completeRecord(record []string, numFields int) bool {
	if len(record) < numFields {
		return false
	}
	for _, field := range record {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if dt, err := time.Parse(layout, s); err == nil {
			return marketClose(dt), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

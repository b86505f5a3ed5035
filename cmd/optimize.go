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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/penny-vault/pv-allocate/allocate"
	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/data"
	"github.com/penny-vault/pv-allocate/estimate"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/penny-vault/pv-allocate/optimize"
	"github.com/penny-vault/pv-allocate/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

var (
	optimizeSeed    uint64
	optimizeWorkers int
	optimizeBegin   string
	optimizeEnd     string
	optimizeOutput  string
)

func init() {
	optimizeCmd.Flags().Float64("investment", allocate.DefaultInvestment, "Total amount to invest")
	viper.BindPFlag("optimize.investment", optimizeCmd.Flags().Lookup("investment"))

	optimizeCmd.Flags().Int("samples", optimize.DefaultSamples, "Number of random portfolios to evaluate")
	viper.BindPFlag("optimize.samples", optimizeCmd.Flags().Lookup("samples"))

	optimizeCmd.Flags().Float64("risk-free-rate", 0, "Annual risk-free rate subtracted from returns when computing the Sharpe ratio, e.g. 0.065")
	viper.BindPFlag("optimize.risk_free_rate", optimizeCmd.Flags().Lookup("risk-free-rate"))

	optimizeCmd.Flags().Int("lookback", 365, "Number of calendar days of price history to use; 0 uses all available history")
	viper.BindPFlag("optimize.lookback", optimizeCmd.Flags().Lookup("lookback"))

	optimizeCmd.Flags().Float64("annualization-factor", estimate.DefaultAnnualizationFactor, "Number of price periods in a year, e.g. 252 for daily or 52 for weekly prices")
	viper.BindPFlag("estimate.annualization_factor", optimizeCmd.Flags().Lookup("annualization-factor"))

	optimizeCmd.Flags().String("provider", data.ProviderTiingo, "Price source one of: tiingo, yahoo, or csv")
	viper.BindPFlag("optimize.provider", optimizeCmd.Flags().Lookup("provider"))

	optimizeCmd.Flags().String("format", FormatTable, "Output format one of: table, csv, or json")
	viper.BindPFlag("optimize.format", optimizeCmd.Flags().Lookup("format"))

	optimizeCmd.Flags().Uint64Var(&optimizeSeed, "seed", 0, "Seed for the random search; 0 picks a different seed every run")
	optimizeCmd.Flags().IntVar(&optimizeWorkers, "workers", 0, "Number of concurrent search workers; 0 uses every CPU")
	optimizeCmd.Flags().StringVar(&optimizeBegin, "begin", "", "First date of price history (YYYY-MM-DD); overrides --lookback")
	optimizeCmd.Flags().StringVar(&optimizeEnd, "end", "", "Last date of price history (YYYY-MM-DD); defaults to today")
	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", "", "Write the allocation to a file instead of stdout")

	rootCmd.AddCommand(optimizeCmd)
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] SYMBOL...",
	Short: "Compute the maximum Sharpe ratio allocation of a list of securities",
	Long: `Compute the maximum Sharpe ratio allocation of a list of securities.

Symbols may be given as separate arguments or as a comma separated list:

  pvallocate optimize --provider yahoo --yahoo-suffix .NS RELIANCE,TCS,HDFCBANK,SBIN`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer startProfile()()

		symbols := common.SplitSymbols(strings.Join(args, ","))
		if len(symbols) < 2 {
			return fmt.Errorf("please enter at least 2 valid stock symbols, got %d", len(symbols))
		}

		format := strings.ToLower(viper.GetString("optimize.format"))
		if format != FormatTable && format != FormatCSV && format != FormatJSON {
			return fmt.Errorf("unknown output format '%s'", format)
		}

		providerName := viper.GetString("optimize.provider")
		provider, err := data.NewProvider(providerName)
		if err != nil {
			return err
		}

		// a folder of CSV files is usually a fixed history; use all of it unless asked otherwise
		lookback := viper.GetInt("optimize.lookback")
		if provider.DataType() == data.ProviderCSV && !cmd.Flags().Changed("lookback") && !viper.InConfig("optimize.lookback") {
			lookback = 0
		}

		begin, end, err := priceWindow(time.Now(), lookback, optimizeBegin, optimizeEnd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Warn().Err(err).Msg("could not setup tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Warn().Err(err).Msg("could not flush traces")
				}
			}()
		}

		cache, err := data.NewCacheFromConfig()
		if err != nil {
			return err
		}
		defer cache.Close()

		allocator := allocate.New(data.NewManager(provider, cache))
		alloc, err := allocator.Run(ctx, allocate.Request{
			Symbols:             symbols,
			Investment:          viper.GetFloat64("optimize.investment"),
			Samples:             viper.GetInt("optimize.samples"),
			RiskFreeRate:        viper.GetFloat64("optimize.risk_free_rate"),
			Seed:                optimizeSeed,
			Workers:             optimizeWorkers,
			AnnualizationFactor: viper.GetFloat64("estimate.annualization_factor"),
			Begin:               begin,
			End:                 end,
		})
		if err != nil {
			log.Error().Err(err).Strs("Symbols", symbols).Str("Provider", providerName).Msg("optimization failed")
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if optimizeOutput != "" {
			fh, err := os.Create(optimizeOutput)
			if err != nil {
				return err
			}
			defer fh.Close()
			out = fh
		}

		if err := writeAllocation(out, alloc, format); err != nil {
			return err
		}

		if optimizeOutput != "" {
			log.Info().Str("Output", optimizeOutput).Msg("wrote allocation")
		}

		return nil
	},
}

// priceWindow computes the date range of price history to request. Explicit
// begin and end dates (YYYY-MM-DD) win over the lookback; a lookback of 0
// leaves the start unbounded.
func priceWindow(now time.Time, lookback int, begin, end string) (time.Time, time.Time, error) {
	tz := common.GetTimezone()
	now = now.In(tz)
	endDt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tz)

	if end != "" {
		dt, err := time.ParseInLocation("2006-01-02", end, tz)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date '%s': %w", end, err)
		}
		endDt = dt
	}

	var beginDt time.Time
	switch {
	case begin != "":
		dt, err := time.ParseInLocation("2006-01-02", begin, tz)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid begin date '%s': %w", begin, err)
		}
		beginDt = dt
	case lookback > 0:
		beginDt = endDt.AddDate(0, 0, -lookback)
	case lookback < 0:
		return time.Time{}, time.Time{}, fmt.Errorf("lookback must not be negative, got %d", lookback)
	}

	if !beginDt.IsZero() && endDt.Before(beginDt) {
		return time.Time{}, time.Time{}, data.ErrInvalidTimeRange
	}

	// end at the close of the last day
	return beginDt, endDt.Add(16 * time.Hour), nil
}

func writeAllocation(w io.Writer, alloc *report.Allocation, format string) error {
	switch format {
	case FormatCSV:
		return alloc.WriteCSV(w)
	case FormatJSON:
		return alloc.WriteJSON(w)
	default:
		_, err := fmt.Fprint(w, alloc.Table())
		return err
	}
}

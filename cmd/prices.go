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
	"strings"
	"time"

	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/data"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	pricesBegin string
	pricesEnd   string
)

func init() {
	for _, cmd := range []*cobra.Command{symbolsCmd, pricesCmd} {
		cmd.Flags().String("provider", data.ProviderTiingo, "Price source one of: tiingo, yahoo, or csv; defaults to optimize.provider")
	}

	pricesCmd.Flags().StringVar(&pricesBegin, "begin", "", "First date of price history (YYYY-MM-DD); overrides --lookback")
	pricesCmd.Flags().StringVar(&pricesEnd, "end", "", "Last date of price history (YYYY-MM-DD); defaults to today")

	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(pricesCmd)
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the securities available from the configured price provider",
	Long: `List the securities available from the configured price provider.
Only the csv provider serves a fixed set of securities.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := newManager(providerName(cmd), nil)
		if err != nil {
			return err
		}

		symbols, err := manager.Symbols(context.Background())
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(symbols, "\n"))
		return err
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices [flags] SYMBOL...",
	Short: "Print the aligned closing prices the optimizer would use",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbols := common.SplitSymbols(strings.Join(args, ","))

		cache, err := data.NewCacheFromConfig()
		if err != nil {
			return err
		}
		defer cache.Close()

		manager, err := newManager(providerName(cmd), cache)
		if err != nil {
			return err
		}

		lookback := viper.GetInt("optimize.lookback")
		if manager.Provider().DataType() == data.ProviderCSV && !viper.InConfig("optimize.lookback") {
			// a folder of CSV files is usually a fixed history
			lookback = 0
		}

		begin, end, err := priceWindow(time.Now(), lookback, pricesBegin, pricesEnd)
		if err != nil {
			return err
		}

		df, omitted, err := manager.PriceTable(context.Background(), symbols, begin, end)
		if err != nil {
			return err
		}

		if len(omitted) > 0 {
			log.Warn().Strs("Omitted", omitted).Msg("no prices for some symbols")
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), df.Table())
		return err
	},
}

// providerName prefers the command's --provider flag over the configured optimize provider
func providerName(cmd *cobra.Command) string {
	if flag := cmd.Flags().Lookup("provider"); flag != nil && flag.Changed {
		return flag.Value.String()
	}
	return viper.GetString("optimize.provider")
}

// newManager creates a data manager for the named provider
func newManager(providerName string, cache *data.Cache) (*data.Manager, error) {
	provider, err := data.NewProvider(providerName)
	if err != nil {
		return nil, err
	}
	return data.NewManager(provider, cache), nil
}

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
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/penny-vault/pv-allocate/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Profile bool

func init() {
	// Logging configuration
	viper.BindEnv("log.level", "PVA_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "PVA_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "PVA_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	viper.BindEnv("log.pretty", "PVA_LOG_PRETTY")
	rootCmd.PersistentFlags().Bool("log-pretty", true, "Format logs for humans instead of as JSON")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	// Price data
	viper.BindEnv("tiingo.token", "TIINGO_TOKEN")
	rootCmd.PersistentFlags().String("tiingo-token", "", "Tiingo API token")
	viper.BindPFlag("tiingo.token", rootCmd.PersistentFlags().Lookup("tiingo-token"))

	viper.BindEnv("yahoo.suffix", "PVA_YAHOO_SUFFIX")
	rootCmd.PersistentFlags().String("yahoo-suffix", "", "Exchange suffix appended to symbols requested from Yahoo, e.g. .NS")
	viper.BindPFlag("yahoo.suffix", rootCmd.PersistentFlags().Lookup("yahoo-suffix"))

	viper.BindEnv("csv.dir", "PVA_CSV_DIR")
	rootCmd.PersistentFlags().String("csv-dir", "data", "Folder of CSV price files used by the csv provider")
	viper.BindPFlag("csv.dir", rootCmd.PersistentFlags().Lookup("csv-dir"))

	// Cache
	viper.BindEnv("cache.redis_url", "REDIS_URL")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis connection string; if blank prices are only cached in memory")
	viper.BindPFlag("cache.redis_url", rootCmd.PersistentFlags().Lookup("redis-url"))

	viper.SetDefault("cache.local_size", 256)
	viper.SetDefault("cache.ttl", "24h")

	// Tracing
	viper.BindEnv("otlp.endpoint", "OTLP_ENDPOINT")
	viper.BindEnv("otlp.http", "OTLP_HTTP")

	rootCmd.PersistentFlags().BoolVar(&Profile, "cpu-profile", false, "Run pprof and save in profile.out")
}

var rootCmd = &cobra.Command{
	Use:     "pvallocate",
	Version: common.CurrentVersion.String(),
	Short:   "Find the portfolio with the best risk-adjusted return",
	Long: `pvallocate downloads the price history of a list of securities, estimates
their annualized returns and covariance, and searches thousands of random
long-only portfolios for the one with the highest Sharpe ratio.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startProfile begins CPU profiling when --cpu-profile is set; the returned
// function stops it
func startProfile() func() {
	if !Profile {
		return func() {}
	}

	f, err := os.Create("profile.out")
	if err != nil {
		log.Fatal().Err(err).Msg("could not create profile.out")
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		log.Fatal().Err(err).Msg("could not start CPU profile")
	}

	return func() {
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			log.Error().Err(err).Msg("could not close profile.out")
		}
	}
}

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
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type logConfig struct {
	Level        string `toml:"level"`
	Output       string `toml:"output"`
	Pretty       bool   `toml:"pretty"`
	ReportCaller bool   `toml:"report_caller"`
}

type tiingoConfig struct {
	Token string `toml:"token"`
}

type yahooConfig struct {
	Suffix string `toml:"suffix"`
}

type csvConfig struct {
	Dir string `toml:"dir"`
}

type cacheConfig struct {
	LocalSize int    `toml:"local_size"`
	RedisURL  string `toml:"redis_url"`
	TTL       string `toml:"ttl"`
}

type optimizeConfig struct {
	Investment   float64 `toml:"investment"`
	Samples      int     `toml:"samples"`
	RiskFreeRate float64 `toml:"risk_free_rate"`
	Lookback     int     `toml:"lookback"`
	Provider     string  `toml:"provider"`
	Format       string  `toml:"format"`
}

type estimateConfig struct {
	AnnualizationFactor float64 `toml:"annualization_factor"`
}

type serverConfig struct {
	Port         int    `toml:"port"`
	Provider     string `toml:"provider"`
	AllowOrigins string `toml:"allow_origins"`
}

type otlpConfig struct {
	Endpoint string `toml:"endpoint"`
	HTTP     bool   `toml:"http"`
}

type configFile struct {
	Log      logConfig      `toml:"log"`
	Tiingo   tiingoConfig   `toml:"tiingo"`
	Yahoo    yahooConfig    `toml:"yahoo"`
	CSV      csvConfig      `toml:"csv"`
	Cache    cacheConfig    `toml:"cache"`
	Estimate estimateConfig `toml:"estimate"`
	Optimize optimizeConfig `toml:"optimize"`
	Server   serverConfig   `toml:"server"`
	OTLP     otlpConfig     `toml:"otlp"`
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the pvallocate configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file populated with the current settings",
	Long: `Write a config file populated with the current settings. The file is
written to config.toml in the current directory unless a path is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn := "config.toml"
		if len(args) == 1 {
			fn = args[0]
		}

		if _, err := os.Stat(fn); err == nil && !configForce {
			return fmt.Errorf("%s already exists; use --force to overwrite it", fn)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		contents, err := toml.Marshal(currentConfig())
		if err != nil {
			return err
		}

		if err := os.WriteFile(fn, contents, 0600); err != nil {
			return err
		}

		log.Info().Str("Path", fn).Msg("wrote config file")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		if cfg.Tiingo.Token != "" {
			cfg.Tiingo.Token = "<redacted>"
		}

		contents, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(contents)
		return err
	},
}

// currentConfig collects the settings viper resolved from flags, environment and config file
func currentConfig() configFile {
	return configFile{
		Log: logConfig{
			Level:        viper.GetString("log.level"),
			Output:       viper.GetString("log.output"),
			Pretty:       viper.GetBool("log.pretty"),
			ReportCaller: viper.GetBool("log.report_caller"),
		},
		Tiingo: tiingoConfig{
			Token: viper.GetString("tiingo.token"),
		},
		Yahoo: yahooConfig{
			Suffix: viper.GetString("yahoo.suffix"),
		},
		CSV: csvConfig{
			Dir: viper.GetString("csv.dir"),
		},
		Cache: cacheConfig{
			LocalSize: viper.GetInt("cache.local_size"),
			RedisURL:  viper.GetString("cache.redis_url"),
			TTL:       viper.GetDuration("cache.ttl").String(),
		},
		Optimize: optimizeConfig{
			Investment:   viper.GetFloat64("optimize.investment"),
			Samples:      viper.GetInt("optimize.samples"),
			RiskFreeRate: viper.GetFloat64("optimize.risk_free_rate"),
			Lookback:     viper.GetInt("optimize.lookback"),
			Provider:     viper.GetString("optimize.provider"),
			Format:       viper.GetString("optimize.format"),
		},
		Estimate: estimateConfig{
			AnnualizationFactor: viper.GetFloat64("estimate.annualization_factor"),
		},
		Server: serverConfig{
			Port:         viper.GetInt("server.port"),
			Provider:     viper.GetString("server.provider"),
			AllowOrigins: viper.GetString("server.allow_origins"),
		},
		OTLP: otlpConfig{
			Endpoint: viper.GetString("otlp.endpoint"),
			HTTP:     viper.GetBool("otlp.http"),
		},
	}
}

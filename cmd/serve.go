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
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/penny-vault/pv-allocate/allocate"
	"github.com/penny-vault/pv-allocate/data"
	"github.com/penny-vault/pv-allocate/handler"
	"github.com/penny-vault/pv-allocate/middleware"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/penny-vault/pv-allocate/router"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	serveCmd.Flags().String("provider", data.ProviderTiingo, "Price source one of: tiingo, yahoo, or csv")
	viper.BindPFlag("server.provider", serveCmd.Flags().Lookup("provider"))

	viper.BindEnv("server.allow_origins", "PVA_ALLOW_ORIGINS")
	serveCmd.Flags().String("allow-origins", "*", "Comma separated list of origins allowed to call the API")
	viper.BindPFlag("server.allow_origins", serveCmd.Flags().Lookup("allow-origins"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pvallocate server",
	Long:  `Run HTTP server that computes optimal allocations on request`,
	Run: func(cmd *cobra.Command, args []string) {
		defer startProfile()()

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Error().Err(err).Msg("could not setup tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Error().Err(err).Msg("could not flush traces")
				}
			}()
		}

		provider, err := data.NewProvider(viper.GetString("server.provider"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not create data provider")
		}

		cache, err := data.NewCacheFromConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create price cache")
		}
		defer cache.Close()

		optimizer := handler.NewOptimizer(allocate.New(data.NewManager(provider, cache)))
		log.Info().Str("Provider", provider.DataType()).Msg("initialized data framework")

		// Create new Fiber instance
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c // block until signal is read
			log.Info().Str("Signal", sig.String()).Msg("shutting down")
			if err := app.Shutdown(); err != nil {
				log.Error().Err(err).Msg("could not shutdown server")
			}
		}()

		app.Use(cors.New(cors.Config{
			AllowOrigins: viper.GetString("server.allow_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD",
		}))

		// Setup logging middleware
		app.Use(middleware.NewLogger())

		router.SetupRoutes(app, optimizer)

		port := viper.GetString("server.port")
		log.Info().Str("Port", port).Msg("starting server")
		if err := app.Listen(":" + port); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	},
}

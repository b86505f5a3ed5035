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

package common_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-allocate/common"
)

var _ = Describe("Util", func() {
	DescribeTable("NormalizeSymbols", func(input, expected []string) {
		Expect(common.NormalizeSymbols(input)).To(Equal(expected))
	},
		Entry("upper-cases", []string{"aapl", "msft"}, []string{"AAPL", "MSFT"}),
		Entry("trims whitespace", []string{" vti ", "\tbnd"}, []string{"VTI", "BND"}),
		Entry("removes duplicates keeping the first", []string{"spy", "TLT", "SPY "}, []string{"SPY", "TLT"}),
		Entry("drops empty entries", []string{"", "  ", "gld"}, []string{"GLD"}),
		Entry("handles nil", nil, []string{}),
	)

	It("splits a symbol list on commas and whitespace", func() {
		Expect(common.SplitSymbols("reliance, tcs,,infy  hdfcbank")).To(Equal([]string{"RELIANCE", "TCS", "INFY", "HDFCBANK"}))
	})

	It("loads the New York timezone", func() {
		Expect(common.GetTimezone().String()).To(Equal("America/New_York"))
	})

	Describe("SetupLogging", func() {
		var (
			prevLevel zerolog.Level
			prevLog   zerolog.Logger
		)

		BeforeEach(func() {
			prevLevel = zerolog.GlobalLevel()
			prevLog = log.Logger
		})

		AfterEach(func() {
			zerolog.SetGlobalLevel(prevLevel)
			log.Logger = prevLog
			viper.Reset()
		})

		DescribeTable("sets the global level", func(level string, expected zerolog.Level) {
			viper.Set("log.level", level)
			viper.Set("log.output", filepath.Join(tempDir(), "pvallocate.log"))
			common.SetupLogging()
			Expect(zerolog.GlobalLevel()).To(Equal(expected))
		},
			Entry("debug", "debug", zerolog.DebugLevel),
			Entry("upper case info", "INFO", zerolog.InfoLevel),
			Entry("warning", "warning", zerolog.WarnLevel),
			Entry("error", "error", zerolog.ErrorLevel),
			Entry("unknown falls back to warn", "chatty", zerolog.WarnLevel),
		)

		It("writes to a log file", func() {
			fn := filepath.Join(tempDir(), "pvallocate.log")
			viper.Set("log.level", "info")
			viper.Set("log.output", fn)
			common.SetupLogging()
			log.Info().Msg("hello from the test")

			contents, err := os.ReadFile(fn)
			Expect(err).To(BeNil())
			Expect(string(contents)).To(ContainSubstring("hello from the test"))
		})
	})
})

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
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/penny-vault/pv-allocate/common"
	"github.com/penny-vault/pv-allocate/observability/opentelemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	deps         bool
	versionShort bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&deps, "deps", false, "print the optimizer settings in effect and the dependency list")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long: `Print the version number. With --deps the module path, the optimizer
settings in effect and the module dependency list are printed as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if versionShort {
			_, err := fmt.Fprintln(out, common.CurrentVersion.String())
			return err
		}

		if _, err := fmt.Fprintln(out, common.BuildVersionString()); err != nil {
			return err
		}

		if deps {
			fmt.Fprintf(out, "\nModule: %s\n\nSettings:\n\n", opentelemetry.Name)
			writeSettings(out)
			_, err := fmt.Fprintf(out, "\nDependencies:\n\n%s\n", strings.Join(common.GetDependencyList(), "\n"))
			return err
		}

		return nil
	},
}

// writeSettings prints the optimizer defaults a run would use
func writeSettings(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"provider", viper.GetString("optimize.provider")})
	table.Append([]string{"samples", fmt.Sprintf("%d", viper.GetInt("optimize.samples"))})
	table.Append([]string{"investment", fmt.Sprintf("%.2f", viper.GetFloat64("optimize.investment"))})
	table.Append([]string{"risk_free_rate", fmt.Sprintf("%g", viper.GetFloat64("optimize.risk_free_rate"))})
	table.Append([]string{"lookback", fmt.Sprintf("%d days", viper.GetInt("optimize.lookback"))})
	table.Append([]string{"annualization_factor", fmt.Sprintf("%g", viper.GetFloat64("estimate.annualization_factor"))})
	table.Render()
}

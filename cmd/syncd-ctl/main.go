/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// syncd-ctl is the operator CLI for a running coordinator: list and
// remove nodes, inspect files and conflicts, tail the event log.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"syncd/pkg/cli"
)

var (
	ctlVersion = "1.0.0"
	coordAddr  string
	outputFmt  string
)

var rootCmd = &cobra.Command{
	Use:     "syncd-ctl",
	Short:   "Operator CLI for a syncd coordinator",
	Version: ctlVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&coordAddr, "coordinator", "http://127.0.0.1:8761", "Coordinator HTTP address")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "table", "Output format: table, json, plain")

	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(eventsCmd)
}

func format() cli.OutputFormat {
	return cli.ParseOutputFormat(outputFmt)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if cliErr, ok := err.(*cli.CLIError); ok {
			cliErr.Print()
			os.Exit(cliErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, cli.Error(err.Error()))
		os.Exit(1)
	}
}

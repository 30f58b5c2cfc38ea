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

package main

import (
	"github.com/spf13/cobra"

	"syncd/pkg/cli"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve replication conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every unresolved conflict",
	RunE:  runConflictsList,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id> <winner-version-id>",
	Short: "Resolve a conflict by designating the winning version",
	Args:  cobra.ExactArgs(2),
	RunE:  runConflictsResolve,
}

func init() {
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
}

type conflictDTO struct {
	ConflictID string `json:"conflict_id"`
	FileID     string `json:"file_id"`
	VersionA   string `json:"version_a"`
	VersionB   string `json:"version_b"`
	DetectedAt string `json:"detected_at"`
}

func runConflictsList(cmd *cobra.Command, args []string) error {
	client := newAPIClient(coordAddr)
	var resp struct {
		Conflicts []conflictDTO `json:"conflicts"`
	}
	if err := client.get("/conflicts", &resp); err != nil {
		return err
	}

	if len(resp.Conflicts) == 0 {
		cli.PrintInfo("No unresolved conflicts")
		return nil
	}

	table := cli.NewTable("CONFLICT ID", "FILE", "VERSION A", "VERSION B", "DETECTED AT")
	table.SetFormat(format())
	for _, c := range resp.Conflicts {
		table.AddRow(c.ConflictID, c.FileID, c.VersionA, c.VersionB, c.DetectedAt)
	}
	table.Print()
	return nil
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	client := newAPIClient(coordAddr)
	conflictID, winnerVersionID := args[0], args[1]

	var resp struct {
		Version versionDTO `json:"version"`
	}
	body := struct {
		WinnerVersionID string `json:"winner_version_id"`
	}{WinnerVersionID: winnerVersionID}
	if err := client.post("/conflicts/"+conflictID+"/resolve", body, &resp); err != nil {
		return err
	}

	cli.PrintSuccess("Resolved conflict %s: new head %s", conflictID, resp.Version.VersionID)
	return nil
}

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
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"syncd/pkg/cli"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail the coordinator's event log",
	RunE:  runEventsList,
}

var (
	exportFormat string
	exportOrder  string
	exportOut    string
	exportLimit  int
)

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the event log as JSON or CSV",
	RunE:  runEventsExport,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum number of recent events to show")

	eventsExportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or csv")
	eventsExportCmd.Flags().StringVar(&exportOrder, "order", "append", "Event order: append or causal")
	eventsExportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (defaults to stdout)")
	eventsExportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of events to export (0 = all)")
	eventsCmd.AddCommand(eventsExportCmd)
}

type eventDTO struct {
	EventID   string         `json:"event_id"`
	Timestamp string         `json:"timestamp"`
	NodeID    string         `json:"node_id"`
	FileID    string         `json:"file_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

func runEventsList(cmd *cobra.Command, args []string) error {
	client := newAPIClient(coordAddr)
	var resp struct {
		Events []eventDTO `json:"events"`
	}
	if err := client.get("/events?limit="+strconv.Itoa(eventsLimit), &resp); err != nil {
		return err
	}

	table := cli.NewTable("TIME", "TYPE", "NODE", "FILE", "EVENT ID")
	table.SetFormat(format())
	for _, e := range resp.Events {
		table.AddRow(e.Timestamp, e.EventType, e.NodeID, e.FileID, e.EventID)
	}
	table.Print()
	fmt.Println()
	return nil
}

func runEventsExport(cmd *cobra.Command, args []string) error {
	client := newAPIClient(coordAddr)

	q := url.Values{}
	q.Set("format", exportFormat)
	q.Set("order", exportOrder)
	if exportLimit > 0 {
		q.Set("limit", strconv.Itoa(exportLimit))
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOut, err)
		}
		defer f.Close()
		out = f
	}

	if err := client.getFile("/events/export?"+q.Encode(), out); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Printf("wrote %s\n", exportOut)
	}
	return nil
}

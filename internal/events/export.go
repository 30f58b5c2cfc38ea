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

package events

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// ExportFormat names a supported export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat validates an operator-supplied format string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportJSON, ExportCSV:
		return ExportFormat(s), nil
	default:
		return "", fmt.Errorf("events: unknown export format %q (want json or csv)", s)
	}
}

// Export writes evts to w in the given format. Unlike Recent/CausalRecent,
// it takes an explicit event slice so a caller can export either append
// order or causal order without the Manager needing to care which.
func (m *Manager) Export(w io.Writer, format ExportFormat, evts []Event) error {
	switch format {
	case ExportCSV:
		return exportCSV(w, evts)
	default:
		return exportJSON(w, evts)
	}
}

func exportJSON(w io.Writer, evts []Event) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(evts); err != nil {
		return fmt.Errorf("events: encode JSON export: %w", err)
	}
	return nil
}

// exportCSV flattens each event to one row; Data and the vector clock,
// both variable-shaped, are carried as embedded JSON columns rather than
// spread across a variable number of CSV columns.
func exportCSV(w io.Writer, evts []Event) error {
	cw := csv.NewWriter(w)

	header := []string{
		"event_id", "timestamp", "node_id", "file_id", "event_type",
		"processed", "orphaned", "vector_clock", "data",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("events: write CSV header: %w", err)
	}

	for _, evt := range evts {
		clockJSON, err := json.Marshal(evt.Clock)
		if err != nil {
			return fmt.Errorf("events: marshal clock for %s: %w", evt.EventID, err)
		}
		var dataJSON []byte
		if len(evt.Data) > 0 {
			dataJSON, err = json.Marshal(evt.Data)
			if err != nil {
				return fmt.Errorf("events: marshal data for %s: %w", evt.EventID, err)
			}
		}

		row := []string{
			evt.EventID,
			evt.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			evt.NodeID,
			evt.FileID,
			string(evt.EventType),
			strconv.FormatBool(evt.Processed),
			strconv.FormatBool(evt.Orphaned),
			string(clockJSON),
			string(dataJSON),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("events: write CSV row %s: %w", evt.EventID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

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
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"syncd/internal/metadata"
	"syncd/internal/vclock"
)

func testManagerForExport(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(metadata.NewMemoryEngine(), Config{BufferSize: 16, FlushInterval: time.Hour, SubscriberBuffer: 4})
	t.Cleanup(m.Stop)
	return m
}

func sampleEvents() []Event {
	return []Event{
		{
			EventID:   "1",
			Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
			NodeID:    "node-a",
			FileID:    "file-1",
			EventType: TypeFileModified,
			Clock:     vclock.VectorClock{"node-a": 1},
			Data:      map[string]any{"bytes_saved": float64(128)},
		},
		{
			EventID:   "2",
			Timestamp: time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC),
			NodeID:    "node-b",
			EventType: TypeNodeRemoved,
			Clock:     vclock.VectorClock{"node-b": 1},
			Orphaned:  true,
		},
	}
}

func TestParseExportFormat(t *testing.T) {
	if _, err := ParseExportFormat("json"); err != nil {
		t.Errorf("json should be valid: %v", err)
	}
	if _, err := ParseExportFormat("csv"); err != nil {
		t.Errorf("csv should be valid: %v", err)
	}
	if _, err := ParseExportFormat("xml"); err == nil {
		t.Error("xml should be rejected")
	}
}

func TestManagerExportJSON(t *testing.T) {
	m := testManagerForExport(t)
	var buf bytes.Buffer
	if err := m.Export(&buf, ExportJSON, sampleEvents()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var out []Event
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d events, want 2", len(out))
	}
	if out[1].Orphaned != true {
		t.Errorf("Orphaned not preserved through export")
	}
}

func TestManagerExportCSV(t *testing.T) {
	m := testManagerForExport(t)
	var buf bytes.Buffer
	if err := m.Export(&buf, ExportCSV, sampleEvents()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	r := csv.NewReader(strings.NewReader(buf.String()))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("exported CSV does not parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows (incl. header), want 3", len(rows))
	}
	if rows[0][0] != "event_id" {
		t.Errorf("header row missing event_id column: %v", rows[0])
	}
	if rows[2][6] != "true" {
		t.Errorf("orphaned column for second event = %q, want true", rows[2][6])
	}
}

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

/*
Package events is the coordinator's append-only Event Log: node
registration and removal, file modifications, replication progress,
completion and errors, and detected conflicts are all recorded here. A bounded
fan-out Broadcaster pushes freshly appended events to live subscribers
(dashboards, node listeners) without ever blocking the writer on a slow
reader.
*/
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"syncd/internal/logging"
	"syncd/internal/metadata"
	"syncd/internal/vclock"
)

// Type names an Event's kind. The set below is the minimum spec requires;
// components may append others.
type Type string

const (
	TypeNodeRegistered   Type = "node_registered"
	TypeNodeRemoved      Type = "node_removed"
	TypeFileModified     Type = "file_modified"
	TypeFileSyncProgress Type = "file_sync_progress"
	TypeSyncCompleted    Type = "sync_completed"
	TypeSyncError        Type = "sync_error"
	TypeConflictDetected Type = "conflict_detected"
)

// Event is a single entry in the log.
type Event struct {
	EventID   string             `json:"event_id"`
	Timestamp time.Time          `json:"timestamp"`
	NodeID    string             `json:"node_id"`
	FileID    string             `json:"file_id,omitempty"`
	EventType Type               `json:"event_type"`
	Data      map[string]any     `json:"data,omitempty"`
	Clock     vclock.VectorClock `json:"vector_clock"`
	Processed bool               `json:"processed"`
	// Orphaned marks an event whose NodeID was later removed from the
	// cluster registry. Set by OrphanNode; never set at Append time.
	Orphaned bool `json:"orphaned,omitempty"`
}

// causalEvent adapts Event to vclock.Clocked.
type causalEvent struct{ e Event }

func (c causalEvent) Clock() vclock.VectorClock { return c.e.Clock }
func (c causalEvent) When() int64               { return c.e.Timestamp.UnixNano() }
func (c causalEvent) ID() string                { return c.e.EventID }

const namespace = "events"

// Config tunes the Manager's async writer and broadcaster.
type Config struct {
	BufferSize       int
	FlushInterval    time.Duration
	SubscriberBuffer int
}

// DefaultConfig mirrors spec's recommended event buffer sizing.
func DefaultConfig() Config {
	return Config{
		BufferSize:       1024,
		FlushInterval:    2 * time.Second,
		SubscriberBuffer: 64,
	}
}

// Manager is the Event Log: an async, ordered writer over a metadata
// Engine plus a Broadcaster for live subscribers.
type Manager struct {
	config Config
	store  metadata.Engine
	logger *logging.Logger

	seq    atomic.Uint64
	buffer chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup

	broadcaster *Broadcaster
}

// NewManager constructs a Manager and starts its background writer.
func NewManager(store metadata.Engine, config Config) *Manager {
	m := &Manager{
		config:      config,
		store:       store,
		logger:      logging.NewLogger("events"),
		buffer:      make(chan Event, config.BufferSize),
		stopCh:      make(chan struct{}),
		broadcaster: newBroadcaster(config.SubscriberBuffer),
	}
	m.wg.Add(1)
	go m.worker()
	return m
}

// nextEventID produces a lexicographically monotonic identifier: a
// zero-padded sequence number (unique per-process, strictly increasing)
// followed by a UUID suffix for global uniqueness across coordinator
// restarts or, in a future multi-coordinator deployment, across nodes.
func (m *Manager) nextEventID() string {
	seq := m.seq.Add(1)
	return fmt.Sprintf("%020d-%s", seq, uuid.NewString())
}

// Append assigns an immutable monotonic event_id, persists the event,
// and pushes it to the broadcaster's live subscribers. The vector clock
// on evt should already reflect the caller's tick/merge; Append does not
// mutate it.
func (m *Manager) Append(evt Event) Event {
	evt.EventID = m.nextEventID()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	select {
	case m.buffer <- evt:
	default:
		m.logger.Warn("event buffer full, dropping event", "event_type", evt.EventType)
	}

	m.broadcaster.publish(evt)
	return evt
}

func (m *Manager) worker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, 128)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		for _, evt := range batch {
			if err := m.writeEvent(evt); err != nil {
				m.logger.Error("failed to persist event", "error", err, "event_id", evt.EventID)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-m.buffer:
			batch = append(batch, evt)
			if len(batch) >= 128 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-m.stopCh:
			for len(m.buffer) > 0 {
				batch = append(batch, <-m.buffer)
			}
			flush()
			return
		}
	}
}

func (m *Manager) writeEvent(evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", evt.EventID, err)
	}
	return m.store.Put(namespace, evt.EventID, data)
}

// Stop flushes any buffered events and stops the background writer.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Recent returns up to limit events, most-recent-first.
func (m *Manager) Recent(limit int) ([]Event, error) {
	recs, err := m.store.Scan(namespace, "")
	if err != nil {
		return nil, fmt.Errorf("events: scan: %w", err)
	}

	out := make([]Event, 0, len(recs))
	for _, r := range recs {
		var evt Event
		if err := json.Unmarshal(r.Value, &evt); err != nil {
			m.logger.Warn("failed to unmarshal event", "key", r.Key, "error", err)
			continue
		}
		out = append(out, evt)
	}

	// recs is ordered lexicographically ascending by key (== EventID,
	// which is monotonic); reverse for most-recent-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// CausalRecent is Recent, re-ordered by causal vector-clock order rather
// than append order.
func (m *Manager) CausalRecent(limit int) ([]Event, error) {
	evts, err := m.Recent(limit)
	if err != nil {
		return nil, err
	}
	clocked := make([]causalEvent, len(evts))
	for i, e := range evts {
		clocked[i] = causalEvent{e: e}
	}
	sorted := vclock.CausalSort(clocked)
	out := make([]Event, len(sorted))
	for i, c := range sorted {
		out[i] = c.e
	}
	return out, nil
}

// Subscribe registers a new subscriber that receives only events
// appended after this call (no replay). The returned cancel function
// must be called to release the subscription.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.broadcaster.subscribe()
}

// OrphanNode marks every already-persisted event owned by node as
// Orphaned and returns how many it touched. Called when a node is
// removed from the cluster registry so its historical activity stays
// queryable but visibly disowned. Events still sitting in the unflushed
// write buffer are not touched; they will simply carry NodeID of a node
// that no longer exists, same as any other tombstoned reference.
func (m *Manager) OrphanNode(node string) (int, error) {
	recs, err := m.store.Scan(namespace, "")
	if err != nil {
		return 0, fmt.Errorf("events: scan: %w", err)
	}

	touched := 0
	for _, r := range recs {
		var evt Event
		if err := json.Unmarshal(r.Value, &evt); err != nil {
			m.logger.Warn("failed to unmarshal event", "key", r.Key, "error", err)
			continue
		}
		if evt.NodeID != node || evt.Orphaned {
			continue
		}
		evt.Orphaned = true
		data, err := json.Marshal(evt)
		if err != nil {
			return touched, fmt.Errorf("events: marshal %s: %w", evt.EventID, err)
		}
		if err := m.store.Put(namespace, evt.EventID, data); err != nil {
			return touched, fmt.Errorf("events: put %s: %w", evt.EventID, err)
		}
		touched++
	}
	return touched, nil
}

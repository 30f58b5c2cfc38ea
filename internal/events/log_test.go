/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package events

import (
	"testing"
	"time"

	"syncd/internal/metadata"
	"syncd/internal/vclock"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := metadata.NewMemoryEngine()
	cfg := Config{BufferSize: 64, FlushInterval: 20 * time.Millisecond, SubscriberBuffer: 8}
	m := NewManager(store, cfg)
	t.Cleanup(m.Stop)
	return m
}

func waitForFlush() {
	time.Sleep(50 * time.Millisecond)
}

func TestAppendAssignsMonotonicEventID(t *testing.T) {
	m := newTestManager(t)

	e1 := m.Append(Event{NodeID: "n1", EventType: TypeNodeRegistered})
	e2 := m.Append(Event{NodeID: "n1", EventType: TypeFileModified})

	if e1.EventID == "" || e2.EventID == "" {
		t.Fatal("expected non-empty event ids")
	}
	if e1.EventID >= e2.EventID {
		t.Errorf("expected e1.EventID < e2.EventID lexicographically, got %q >= %q", e1.EventID, e2.EventID)
	}
}

func TestAppendPersistsAndRecentReturnsMostRecentFirst(t *testing.T) {
	m := newTestManager(t)

	m.Append(Event{NodeID: "n1", EventType: TypeNodeRegistered})
	m.Append(Event{NodeID: "n1", EventType: TypeFileModified})
	third := m.Append(Event{NodeID: "n1", EventType: TypeSyncCompleted})

	waitForFlush()

	recent, err := m.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	if recent[0].EventID != third.EventID {
		t.Errorf("expected most recent first, got %q", recent[0].EventID)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 5; i++ {
		m.Append(Event{NodeID: "n1", EventType: TypeFileModified})
	}
	waitForFlush()

	recent, err := m.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 events, got %d", len(recent))
	}
}

func TestCausalRecentOrdersByVectorClock(t *testing.T) {
	m := newTestManager(t)

	clockA := vclock.VectorClock{"n1": 1}
	clockB := vclock.VectorClock{"n1": 2}

	m.Append(Event{NodeID: "n1", EventType: TypeFileModified, Clock: clockB})
	m.Append(Event{NodeID: "n1", EventType: TypeFileModified, Clock: clockA})
	waitForFlush()

	ordered, err := m.CausalRecent(0)
	if err != nil {
		t.Fatalf("CausalRecent failed: %v", err)
	}
	if len(ordered) != 2 {
		t.Fatalf("expected 2 events, got %d", len(ordered))
	}
	if ordered[0].Clock["n1"] != 1 || ordered[1].Clock["n1"] != 2 {
		t.Errorf("expected causal order [1,2], got [%d,%d]", ordered[0].Clock["n1"], ordered[1].Clock["n1"])
	}
}

func TestSubscribeReceivesOnlyEventsAfterSubscription(t *testing.T) {
	m := newTestManager(t)

	m.Append(Event{NodeID: "n1", EventType: TypeNodeRegistered})

	ch, cancel := m.Subscribe()
	defer cancel()

	m.Append(Event{NodeID: "n1", EventType: TypeFileModified})

	select {
	case evt := <-ch:
		if evt.EventType != TypeFileModified {
			t.Errorf("expected file_modified, got %s", evt.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}

	select {
	case extra := <-ch:
		t.Fatalf("expected no replay of earlier events, got %+v", extra)
	default:
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	m := newTestManager(t)
	ch, cancel := m.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
}

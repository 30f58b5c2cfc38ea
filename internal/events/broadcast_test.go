/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package events

import "testing"

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := newBroadcaster(4)
	ch1, cancel1 := b.subscribe()
	ch2, cancel2 := b.subscribe()
	defer cancel1()
	defer cancel2()

	evt := Event{EventID: "1", EventType: TypeNodeRegistered}
	b.publish(evt)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.EventID != "1" {
				t.Errorf("subscriber %d: expected event 1, got %q", i, got.EventID)
			}
		default:
			t.Errorf("subscriber %d: expected delivered event", i)
		}
	}
}

func TestBroadcasterDropsOnFullSubscriberChannel(t *testing.T) {
	b := newBroadcaster(1)
	ch, cancel := b.subscribe()
	defer cancel()

	b.publish(Event{EventID: "1"})
	b.publish(Event{EventID: "2"}) // channel already full, must be dropped not blocked

	got := <-ch
	if got.EventID != "1" {
		t.Errorf("expected first event retained, got %q", got.EventID)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected second event dropped, got %+v", extra)
	default:
	}
}

func TestBroadcasterCancelRemovesSubscriber(t *testing.T) {
	b := newBroadcaster(1)
	_, cancel := b.subscribe()
	if b.subscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.subscriberCount())
	}
	cancel()
	if b.subscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", b.subscriberCount())
	}
}

func TestBroadcasterCancelIsIdempotent(t *testing.T) {
	b := newBroadcaster(1)
	_, cancel := b.subscribe()
	cancel()
	cancel() // must not panic on double-close
}

func TestBroadcasterNewSubscriberMissesPriorEvents(t *testing.T) {
	b := newBroadcaster(4)
	b.publish(Event{EventID: "before"})

	ch, cancel := b.subscribe()
	defer cancel()

	select {
	case evt := <-ch:
		t.Fatalf("expected no replay, got %+v", evt)
	default:
	}
}

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

import "sync"

// Broadcaster fans out appended events to any number of live subscribers.
// A slow or stalled subscriber never blocks the writer: its channel is
// bounded, and a full channel simply drops the event for that subscriber.
// Subscribers never receive events appended before they subscribed.
type Broadcaster struct {
	bufferSize int

	mu   sync.Mutex
	next uint64
	subs map[uint64]chan Event
}

func newBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Broadcaster{
		bufferSize: bufferSize,
		subs:       make(map[uint64]chan Event),
	}
}

// subscribe registers a new subscriber and returns its channel plus a
// cancel function that unregisters and closes it. Safe to call cancel
// more than once.
func (b *Broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, b.bufferSize)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish delivers evt to every current subscriber, dropping it for any
// subscriber whose channel is full rather than waiting on them.
func (b *Broadcaster) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// subscriberCount reports how many subscribers are currently registered.
func (b *Broadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

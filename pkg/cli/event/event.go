/* Copyright 2025 URL Notes Authors
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

// Package event provides a typed publish/subscribe channel between the sync
// core and presentation layers. Event payloads are a closed union checked at
// compile time.
package event

import (
	"sync"
	"time"
)

// Event is a notification emitted by the store or the sync engine.
type Event interface {
	isEvent()
}

// NotesUpdated signals that a note was created, modified, or soft-deleted locally.
type NotesUpdated struct {
	NoteUUID string
}

// SyncStarted signals the beginning of a sync pass.
type SyncStarted struct {
	At time.Time
}

// SyncSucceeded signals a completed sync pass.
type SyncSucceeded struct {
	At        time.Time
	Pushed    int
	Merged    int
	Deletions int
}

// SyncFailed signals an aborted sync pass. Local data is intact.
type SyncFailed struct {
	At  time.Time
	Err error
}

// ConflictDetected signals that divergent edits were detected and resolved.
// It is always surfaced, never handled silently.
type ConflictDetected struct {
	NoteUUID string
	// Winner is "local" or "remote"
	Winner string
	// Diff is a rendered line diff between the two sides
	Diff string
}

func (NotesUpdated) isEvent()     {}
func (SyncStarted) isEvent()      {}
func (SyncSucceeded) isEvent()    {}
func (SyncFailed) isEvent()       {}
func (ConflictDetected) isEvent() {}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus returns a new event bus
func NewBus() *Bus {
	return &Bus{
		subs: map[int]chan Event{},
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers the event to every subscriber with buffer room
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

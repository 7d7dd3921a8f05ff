// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package events provides a small typed event bus for job lifecycle
// notifications. Emission is synchronous so that per-job ordering
// (queued → started → exactly one terminal event) is guaranteed by
// construction; a misbehaving listener can never abort the job that
// triggered it.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/taskbrief/intake/internal/models"
)

// Type identifies a job lifecycle event.
type Type string

const (
	EmailQueued              Type = "emailQueued"
	EmailProcessingStarted   Type = "emailProcessingStarted"
	EmailProcessingCompleted Type = "emailProcessingCompleted"
	EmailProcessingFailed    Type = "emailProcessingFailed"
)

// JobEvent carries the state of a job at a lifecycle transition.
type JobEvent struct {
	Type      Type
	JobID     string
	MessageID string
	State     models.JobState
	Outcome   string
	Error     string
	At        time.Time
}

// Listener receives job events. Listeners run synchronously on the
// emitting goroutine and must not block for long.
type Listener func(JobEvent)

// Bus dispatches job events to subscribed listeners.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Type][]Listener)}
}

// Subscribe registers a listener for one event type.
func (b *Bus) Subscribe(t Type, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], fn)
}

// SubscribeAll registers a listener for every job lifecycle event type.
func (b *Bus) SubscribeAll(fn Listener) {
	for _, t := range []Type{EmailQueued, EmailProcessingStarted, EmailProcessingCompleted, EmailProcessingFailed} {
		b.Subscribe(t, fn)
	}
}

// Emit delivers the event to all listeners for its type, in subscription
// order. A panicking listener is logged and skipped.
func (b *Bus) Emit(ev JobEvent) {
	b.mu.RLock()
	listeners := b.listeners[ev.Type]
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.safeCall(fn, ev)
	}
}

func (b *Bus) safeCall(fn Listener, ev JobEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked",
				"event", ev.Type,
				"job_id", ev.JobID,
				"panic", r,
			)
		}
	}()
	fn(ev)
}

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

// Package dedup tracks processed message records so the same inbound
// message is never handled twice. The check-then-mark protocol is
// best-effort: two identical messages racing through the queue before
// either is marked can both be processed. That window is accepted —
// duplicate delivery is rare and the consequence is non-catastrophic.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/taskbrief/intake/internal/models"
)

// Store records which message IDs have been processed and with what
// outcome. Records are append-only; Mark for an already-marked ID is a
// no-op rather than an overwrite.
type Store interface {
	// Seen reports whether a record exists for the message ID.
	Seen(ctx context.Context, messageID string) (bool, error)
	// Mark writes the processed record for the message ID.
	Mark(ctx context.Context, messageID, outcome string) error
}

// DefaultMemoryCap bounds the in-memory record set.
const DefaultMemoryCap = 10000

// MemoryStore is a bounded in-process Store. When the cap is exceeded
// the oldest records are evicted first.
type MemoryStore struct {
	mu      sync.Mutex
	cap     int
	records map[string]models.ProcessedMessageRecord
	order   []string
}

// NewMemoryStore creates a bounded in-memory store. A cap of zero or
// less uses DefaultMemoryCap.
func NewMemoryStore(cap int) *MemoryStore {
	if cap <= 0 {
		cap = DefaultMemoryCap
	}
	return &MemoryStore{
		cap:     cap,
		records: make(map[string]models.ProcessedMessageRecord),
	}
}

// Seen reports whether the message ID has been marked.
func (s *MemoryStore) Seen(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[messageID]
	return ok, nil
}

// Mark records the message ID with its outcome, evicting the oldest
// records if the cap is exceeded. An existing record is left untouched.
func (s *MemoryStore) Mark(_ context.Context, messageID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[messageID]; ok {
		return nil
	}

	s.records[messageID] = models.ProcessedMessageRecord{
		MessageID: messageID,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	s.order = append(s.order, messageID)

	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldest)
	}
	return nil
}

// Outcome returns the recorded outcome for a message ID, if any.
func (s *MemoryStore) Outcome(_ context.Context, messageID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[messageID]
	return rec.Outcome, ok
}

// Len returns the number of records currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

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

package dedup

import (
	"context"
	"fmt"
	"testing"
)

// TestMemoryStore_SeenAfterMark verifies the basic check-then-mark flow.
func TestMemoryStore_SeenAfterMark(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	seen, err := s.Seen(ctx, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Error("unmarked message reported as seen")
	}

	if err := s.Mark(ctx, "msg-1", "processed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	seen, err = s.Seen(ctx, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Error("marked message not reported as seen")
	}

	outcome, ok := s.Outcome(ctx, "msg-1")
	if !ok || outcome != "processed" {
		t.Errorf("outcome = %q, %v; want %q, true", outcome, ok, "processed")
	}
}

// TestMemoryStore_MarkIsAppendOnly verifies a second mark never
// overwrites the first record.
func TestMemoryStore_MarkIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	if err := s.Mark(ctx, "msg-1", "first"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := s.Mark(ctx, "msg-1", "second"); err != nil {
		t.Fatalf("repeat mark failed: %v", err)
	}

	outcome, _ := s.Outcome(ctx, "msg-1")
	if outcome != "first" {
		t.Errorf("outcome = %q, want %q (first record must win)", outcome, "first")
	}
}

// TestMemoryStore_EvictsOldestFirst verifies the retention cap evicts
// in insertion order.
func TestMemoryStore_EvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	for i := 0; i < 5; i++ {
		if err := s.Mark(ctx, fmt.Sprintf("msg-%d", i), "ok"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	if got := s.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	for i, wantSeen := range []bool{false, false, true, true, true} {
		seen, _ := s.Seen(ctx, fmt.Sprintf("msg-%d", i))
		if seen != wantSeen {
			t.Errorf("msg-%d seen = %v, want %v", i, seen, wantSeen)
		}
	}
}

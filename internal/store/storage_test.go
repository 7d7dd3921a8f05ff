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

package store

import (
	"context"
	"testing"

	"github.com/taskbrief/intake/internal/models"
)

func TestMemory_LookupsReturnNilNilWhenMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if u, err := m.GetUser(ctx, "missing"); err != nil || u != nil {
		t.Errorf("GetUser = %v, %v; want nil, nil", u, err)
	}
	if u, err := m.GetUserByEmail(ctx, "missing@example.com"); err != nil || u != nil {
		t.Errorf("GetUserByEmail = %v, %v; want nil, nil", u, err)
	}
	if p, err := m.GetProjectByName(ctx, "owner", "missing"); err != nil || p != nil {
		t.Errorf("GetProjectByName = %v, %v; want nil, nil", p, err)
	}
	if s, err := m.GetSubmission(ctx, "missing"); err != nil || s != nil {
		t.Errorf("GetSubmission = %v, %v; want nil, nil", s, err)
	}
	if pref, err := m.GetNotificationPreferences(ctx, "missing"); err != nil || pref != nil {
		t.Errorf("GetNotificationPreferences = %v, %v; want nil, nil", pref, err)
	}
}

func TestMemory_UserEmailLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreateUser(ctx, &User{ID: "user-1", Email: "Bob@Example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	u, err := m.GetUserByEmail(ctx, "bob@EXAMPLE.COM")
	if err != nil || u == nil {
		t.Fatalf("lookup failed: %v, %v", u, err)
	}
	if u.ID != "user-1" {
		t.Errorf("user ID = %q", u.ID)
	}
}

func TestMemory_AssignmentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 3; i++ {
		if err := m.CreateAssignment(ctx, "task-1", "user-1", "owner-1"); err != nil {
			t.Fatalf("assignment %d: %v", i, err)
		}
	}
	assignees, err := m.GetTaskAssignees(ctx, "task-1")
	if err != nil {
		t.Fatalf("get assignees: %v", err)
	}
	if len(assignees) != 1 {
		t.Errorf("assignees = %v, want one entry", assignees)
	}
}

func TestMemory_SubmissionUniqueByMessageID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreateSubmission(ctx, &Submission{ID: "sub-1", MessageID: "m1"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := m.CreateSubmission(ctx, &Submission{ID: "sub-2", MessageID: "m1"}); err == nil {
		t.Error("duplicate message ID accepted")
	}
}

func TestMemory_SelfTrustEdgeRejected(t *testing.T) {
	m := NewMemory()
	err := m.SetTrustEdge(models.TrustEdge{UserID: "user-1", TrustedUserID: "user-1", Status: models.TrustTrusted})
	if err == nil {
		t.Error("self-referential trust edge accepted")
	}
}

func TestTrustAdapter(t *testing.T) {
	ctx := context.Background()

	m := NewMemory()
	if err := m.CreateUser(ctx, &User{ID: "sender-1", Email: "alice@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := m.SetTrustEdge(models.TrustEdge{UserID: "owner-1", TrustedUserID: "sender-1", Status: models.TrustTrusted}); err != nil {
		t.Fatalf("set edge: %v", err)
	}

	adapter := TrustAdapter{Storage: m}

	tests := []struct {
		name    string
		ownerID string
		sender  string
		want    models.TrustStatus
	}{
		{"trusted edge resolves", "owner-1", "Alice@Example.com", models.TrustTrusted},
		{"missing edge is empty status", "owner-2", "alice@example.com", ""},
		{"unknown sender is empty status", "owner-1", "stranger@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adapter.TrustStatus(ctx, tt.ownerID, tt.sender)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

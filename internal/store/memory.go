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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskbrief/intake/internal/models"
)

// Memory is an in-process Storage used for local runs and tests.
type Memory struct {
	mu           sync.Mutex
	users        map[string]*User
	usersByEmail map[string]*User
	projects     map[string]*Project
	tasks        map[string]*Task
	assignees    map[string][]string // taskID → userIDs
	prefs        map[string]models.NotificationPreference
	trust        map[string]models.TrustEdge // userID + "\x00" + trustedUserID
	submissions  map[string]*Submission      // keyed by message ID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:        make(map[string]*User),
		usersByEmail: make(map[string]*User),
		projects:     make(map[string]*Project),
		tasks:        make(map[string]*Task),
		assignees:    make(map[string][]string),
		prefs:        make(map[string]models.NotificationPreference),
		trust:        make(map[string]models.TrustEdge),
		submissions:  make(map[string]*Submission),
	}
}

func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usersByEmail[strings.ToLower(email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("store: user %q already exists", u.ID)
	}
	cp := *u
	m.users[u.ID] = &cp
	if u.Email != "" {
		m.usersByEmail[strings.ToLower(u.Email)] = &cp
	}
	return nil
}

func (m *Memory) GetProject(_ context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GetProjectByName(_ context.Context, ownerID, name string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.OwnerID == ownerID && strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("store: project %q already exists", p.ID)
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) GetTask(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) CreateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("store: task %q already exists", t.ID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) UpdateTaskStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("store: task %q not found", id)
	}
	t.Status = status
	return nil
}

func (m *Memory) GetTaskAssignees(_ context.Context, taskID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.assignees[taskID]...), nil
}

func (m *Memory) CreateAssignment(_ context.Context, taskID, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignees[taskID] {
		if existing == userID {
			return nil
		}
	}
	m.assignees[taskID] = append(m.assignees[taskID], userID)
	return nil
}

func (m *Memory) GetNotificationPreferences(_ context.Context, userID string) (*models.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pref, ok := m.prefs[userID]; ok {
		cp := pref
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) UpsertNotificationPreferences(_ context.Context, pref models.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[pref.UserID] = pref
	return nil
}

func (m *Memory) GetTrustEdge(_ context.Context, userID, trustedUserID string) (*models.TrustEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if edge, ok := m.trust[userID+"\x00"+trustedUserID]; ok {
		cp := edge
		return &cp, nil
	}
	return nil, nil
}

// SetTrustEdge installs a trust edge. Self-edges are rejected.
func (m *Memory) SetTrustEdge(edge models.TrustEdge) error {
	if edge.UserID == edge.TrustedUserID {
		return fmt.Errorf("store: trust edge cannot be self-referential")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trust[edge.UserID+"\x00"+edge.TrustedUserID] = edge
	return nil
}

func (m *Memory) GetSubmission(_ context.Context, messageID string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[messageID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) CreateSubmission(_ context.Context, s *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[s.MessageID]; ok {
		return fmt.Errorf("store: submission for message %q already exists", s.MessageID)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.submissions[s.MessageID] = &cp
	return nil
}

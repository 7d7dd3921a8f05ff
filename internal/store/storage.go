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

// Package store defines the persistent storage collaborator consumed by
// the router and the notifier, with Postgres and in-memory backends.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/taskbrief/intake/internal/models"
)

// User is a platform account resolvable by ID or email address.
type User struct {
	ID    string
	Email string
	Name  string
}

// Project groups tasks under an owner.
type Project struct {
	ID      string
	OwnerID string
	Name    string
}

// Task is a discrete unit of work extracted from a task-request email.
type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      string
	CreatedBy   string
	CreatedAt   time.Time
}

// Submission is a persisted intelligence-agent report, keyed by the
// originating message ID so duplicate deliveries never create two.
type Submission struct {
	ID        string
	MessageID string
	AgentName string
	Sender    string
	Sentiment string
	Topics    []string
	ItemCount int
	CreatedAt time.Time
}

// Storage is the persistence collaborator. Lookups return (nil, nil)
// when the entity does not exist.
type Storage interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error

	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, ownerID, name string) (*Project, error)
	CreateProject(ctx context.Context, p *Project) error

	GetTask(ctx context.Context, id string) (*Task, error)
	CreateTask(ctx context.Context, t *Task) error
	UpdateTaskStatus(ctx context.Context, id, status string) error
	GetTaskAssignees(ctx context.Context, taskID string) ([]string, error)
	CreateAssignment(ctx context.Context, taskID, userID, assignedBy string) error

	GetNotificationPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error)
	UpsertNotificationPreferences(ctx context.Context, pref models.NotificationPreference) error

	GetTrustEdge(ctx context.Context, userID, trustedUserID string) (*models.TrustEdge, error)

	GetSubmission(ctx context.Context, messageID string) (*Submission, error)
	CreateSubmission(ctx context.Context, s *Submission) error
}

// TrustAdapter exposes storage trust edges in the shape the security
// pipeline consumes: owner ID plus sender email.
type TrustAdapter struct {
	Storage Storage
}

// TrustStatus resolves the sender's account and returns the status of
// the owner→sender trust edge. An unknown sender or missing edge is an
// empty status, not an error.
func (a TrustAdapter) TrustStatus(ctx context.Context, ownerID, senderEmail string) (models.TrustStatus, error) {
	sender, err := a.Storage.GetUserByEmail(ctx, strings.ToLower(senderEmail))
	if err != nil {
		return "", err
	}
	if sender == nil {
		return "", nil
	}

	edge, err := a.Storage.GetTrustEdge(ctx, ownerID, sender.ID)
	if err != nil {
		return "", err
	}
	if edge == nil {
		return "", nil
	}
	return edge.Status, nil
}

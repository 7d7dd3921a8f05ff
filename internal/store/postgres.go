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
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskbrief/intake/internal/models"
)

// Postgres is a Storage backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store and ensures the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure intake schema: %w", err)
	}
	slog.Info("postgres store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			name       TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(owner_id, name)
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT DEFAULT '',
			status      TEXT DEFAULT 'open',
			created_by  TEXT NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS assignments (
			task_id     TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			assigned_by TEXT NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (task_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id              TEXT PRIMARY KEY,
			email_notifications  BOOLEAN DEFAULT TRUE,
			new_task_alerts      BOOLEAN DEFAULT TRUE,
			project_updates      BOOLEAN DEFAULT TRUE,
			task_status_changes  BOOLEAN DEFAULT TRUE,
			task_assignments     BOOLEAN DEFAULT TRUE,
			task_due_reminders   BOOLEAN DEFAULT TRUE,
			weekly_digest        BOOLEAN DEFAULT FALSE,
			updated_at           TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS trust_edges (
			user_id         TEXT NOT NULL,
			trusted_user_id TEXT NOT NULL,
			status          TEXT NOT NULL,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (user_id, trusted_user_id),
			CHECK (user_id <> trusted_user_id)
		);
		CREATE TABLE IF NOT EXISTS submissions (
			id         TEXT PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			agent_name TEXT NOT NULL,
			sender     TEXT NOT NULL,
			sentiment  TEXT DEFAULT '',
			topics     TEXT[] DEFAULT '{}',
			item_count INT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
		CREATE INDEX IF NOT EXISTS idx_assignments_user ON assignments(user_id);
	`)
	return err
}

func (s *Postgres) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, email, name FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, email, name FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

func (s *Postgres) CreateUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
	`, u.ID, strings.ToLower(u.Email), u.Name)
	return err
}

func (s *Postgres) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, owner_id, name FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *Postgres) GetProjectByName(ctx context.Context, ownerID, name string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, name FROM projects WHERE owner_id = $1 AND LOWER(name) = LOWER($2)
	`, ownerID, name)
	return scanProject(row)
}

func (s *Postgres) CreateProject(ctx context.Context, p *Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, owner_id, name) VALUES ($1, $2, $3)
	`, p.ID, p.OwnerID, p.Name)
	return err
}

func (s *Postgres) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, title, description, status, created_by, created_at
		FROM tasks WHERE id = $1
	`, id)
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedBy, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Postgres) CreateTask(ctx context.Context, t *Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.CreatedBy)
	return err
}

func (s *Postgres) UpdateTaskStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET status = $1 WHERE id = $2`, status, id)
	return err
}

func (s *Postgres) GetTaskAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM assignments WHERE task_id = $1 ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (s *Postgres) CreateAssignment(ctx context.Context, taskID, userID, assignedBy string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignments (task_id, user_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`, taskID, userID, assignedBy)
	return err
}

func (s *Postgres) GetNotificationPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email_notifications, new_task_alerts, project_updates,
		       task_status_changes, task_assignments, task_due_reminders, weekly_digest
		FROM notification_preferences WHERE user_id = $1
	`, userID)

	var pref models.NotificationPreference
	err := row.Scan(
		&pref.UserID, &pref.EmailNotifications, &pref.NewTaskAlerts, &pref.ProjectUpdates,
		&pref.TaskStatusChanges, &pref.TaskAssignments, &pref.TaskDueReminders, &pref.WeeklyDigest,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (s *Postgres) UpsertNotificationPreferences(ctx context.Context, pref models.NotificationPreference) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences
			(user_id, email_notifications, new_task_alerts, project_updates,
			 task_status_changes, task_assignments, task_due_reminders, weekly_digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			email_notifications = EXCLUDED.email_notifications,
			new_task_alerts     = EXCLUDED.new_task_alerts,
			project_updates     = EXCLUDED.project_updates,
			task_status_changes = EXCLUDED.task_status_changes,
			task_assignments    = EXCLUDED.task_assignments,
			task_due_reminders  = EXCLUDED.task_due_reminders,
			weekly_digest       = EXCLUDED.weekly_digest,
			updated_at          = NOW()
	`, pref.UserID, pref.EmailNotifications, pref.NewTaskAlerts, pref.ProjectUpdates,
		pref.TaskStatusChanges, pref.TaskAssignments, pref.TaskDueReminders, pref.WeeklyDigest)
	return err
}

func (s *Postgres) GetTrustEdge(ctx context.Context, userID, trustedUserID string) (*models.TrustEdge, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, trusted_user_id, status
		FROM trust_edges WHERE user_id = $1 AND trusted_user_id = $2
	`, userID, trustedUserID)

	var edge models.TrustEdge
	err := row.Scan(&edge.UserID, &edge.TrustedUserID, &edge.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (s *Postgres) GetSubmission(ctx context.Context, messageID string) (*Submission, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, message_id, agent_name, sender, sentiment, topics, item_count, created_at
		FROM submissions WHERE message_id = $1
	`, messageID)

	var sub Submission
	err := row.Scan(&sub.ID, &sub.MessageID, &sub.AgentName, &sub.Sender,
		&sub.Sentiment, &sub.Topics, &sub.ItemCount, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Postgres) CreateSubmission(ctx context.Context, sub *Submission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (id, message_id, agent_name, sender, sentiment, topics, item_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sub.ID, sub.MessageID, sub.AgentName, sub.Sender, sub.Sentiment, sub.Topics, sub.ItemCount)
	return err
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

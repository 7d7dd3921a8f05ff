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

// Package notify fans out per-recipient notification emails. Every
// recipient is handled independently: a disabled preference, missing
// data, or delivery failure for one recipient never affects the others
// and is never surfaced to the triggering caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/taskbrief/intake/internal/delivery"
	"github.com/taskbrief/intake/internal/models"
	"github.com/taskbrief/intake/internal/store"
)

// Notifier sends assignment and status-change notifications.
type Notifier struct {
	storage store.Storage
	sender  delivery.Sender
}

// New creates a notifier over the given storage and delivery transport.
func New(storage store.Storage, sender delivery.Sender) *Notifier {
	return &Notifier{storage: storage, sender: sender}
}

// NotifyAssignment alerts the assignee that they were assigned a task.
// The acting user never receives a notification for their own action.
func (n *Notifier) NotifyAssignment(ctx context.Context, taskID, assigneeID, actingUserID string) {
	if assigneeID == actingUserID {
		return
	}

	task, project := n.taskContext(ctx, taskID)
	if task == nil {
		return
	}

	n.deliver(ctx, assigneeID, func(pref models.NotificationPreference) bool {
		return pref.EmailNotifications && pref.TaskAssignments
	},
		fmt.Sprintf("You were assigned: %s", task.Title),
		assignmentBody(task, project),
	)
}

// NotifyStatusChange alerts every current assignee, except the acting
// user, that a task changed status. Recipients are processed
// concurrently; they share no mutable state beyond independently keyed
// preference lookups.
func (n *Notifier) NotifyStatusChange(ctx context.Context, taskID, oldStatus, newStatus, actingUserID string) {
	task, project := n.taskContext(ctx, taskID)
	if task == nil {
		return
	}

	assignees, err := n.storage.GetTaskAssignees(ctx, taskID)
	if err != nil {
		slog.Error("failed to load task assignees", "task_id", taskID, "error", err)
		return
	}

	subject := fmt.Sprintf("Task %q moved from %s to %s", task.Title, oldStatus, newStatus)
	body := statusChangeBody(task, project, oldStatus, newStatus)

	var wg sync.WaitGroup
	for _, assigneeID := range assignees {
		if assigneeID == actingUserID {
			continue
		}
		wg.Add(1)
		go func(recipientID string) {
			defer wg.Done()
			n.deliver(ctx, recipientID, func(pref models.NotificationPreference) bool {
				return pref.EmailNotifications && pref.TaskStatusChanges
			}, subject, body)
		}(assigneeID)
	}
	wg.Wait()
}

// taskContext loads the task and its project, logging and returning nil
// on missing data. A missing project is tolerated; a missing task skips
// the notification entirely.
func (n *Notifier) taskContext(ctx context.Context, taskID string) (*store.Task, *store.Project) {
	task, err := n.storage.GetTask(ctx, taskID)
	if err != nil {
		slog.Error("failed to load task for notification", "task_id", taskID, "error", err)
		return nil, nil
	}
	if task == nil {
		slog.Debug("skipping notification for missing task", "task_id", taskID)
		return nil, nil
	}

	project, err := n.storage.GetProject(ctx, task.ProjectID)
	if err != nil {
		slog.Warn("failed to load project for notification", "project_id", task.ProjectID, "error", err)
		project = nil
	}
	return task, project
}

// deliver performs the preference check and delivery attempt for a
// single recipient. All failures are logged, never returned.
func (n *Notifier) deliver(ctx context.Context, userID string, wants func(models.NotificationPreference) bool, subject, htmlBody string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification delivery panicked", "user_id", userID, "panic", r)
		}
	}()

	user, err := n.storage.GetUser(ctx, userID)
	if err != nil {
		slog.Error("failed to load notification recipient", "user_id", userID, "error", err)
		return
	}
	if user == nil || user.Email == "" {
		slog.Debug("skipping notification for recipient without address", "user_id", userID)
		return
	}

	pref, err := n.storage.GetNotificationPreferences(ctx, userID)
	if err != nil {
		slog.Error("failed to load notification preferences", "user_id", userID, "error", err)
		return
	}
	effective := models.DefaultNotificationPreference(userID)
	if pref != nil {
		effective = *pref
	}

	if !wants(effective) {
		slog.Debug("notification suppressed by preference", "user_id", userID)
		return
	}

	if err := n.sender.Send(ctx, user.Email, subject, htmlBody); err != nil {
		slog.Error("notification delivery failed",
			"user_id", userID,
			"to", user.Email,
			"error", err,
		)
		return
	}

	slog.Info("notification delivered", "user_id", userID, "subject", subject)
}

func assignmentBody(task *store.Task, project *store.Project) string {
	projectName := ""
	if project != nil {
		projectName = project.Name
	}
	return fmt.Sprintf(
		"<p>You have been assigned a new task.</p><p><strong>%s</strong></p><p>%s</p><p>Project: %s</p>",
		task.Title, task.Description, projectName,
	)
}

func statusChangeBody(task *store.Task, project *store.Project, oldStatus, newStatus string) string {
	projectName := ""
	if project != nil {
		projectName = project.Name
	}
	return fmt.Sprintf(
		"<p>Task <strong>%s</strong> changed status from %s to %s</p><p>Project: %s</p>",
		task.Title, oldStatus, newStatus, projectName,
	)
}

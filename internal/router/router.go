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

// Package router classifies admitted messages by their recipient agent
// and dispatches them to the matching idempotent flow: intelligence
// submissions or task-request extraction.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/taskbrief/intake/internal/analysis"
	"github.com/taskbrief/intake/internal/models"
	"github.com/taskbrief/intake/internal/notify"
	"github.com/taskbrief/intake/internal/queue"
	"github.com/taskbrief/intake/internal/security"
	"github.com/taskbrief/intake/internal/store"
)

// ErrExtractionFailed marks a task-extraction collaborator failure.
// Unlike the intelligence flow, which skips silently when analysis
// fails, task extraction failures propagate to the dispatcher's caller.
// The asymmetry is deliberate, current behavior.
var ErrExtractionFailed = errors.New("task extraction failed")

// Router routes admitted messages to their processing flow.
type Router struct {
	agents   *AgentRegistry
	pipeline *security.Pipeline
	storage  store.Storage
	analyzer analysis.Analyzer
	notifier *notify.Notifier
}

// New creates a router over its collaborators.
func New(agents *AgentRegistry, pipeline *security.Pipeline, storage store.Storage, analyzer analysis.Analyzer, notifier *notify.Notifier) *Router {
	return &Router{
		agents:   agents,
		pipeline: pipeline,
		storage:  storage,
		analyzer: analyzer,
		notifier: notifier,
	}
}

// Classify derives the agent identity from the message's recipients and
// returns the message category. The first recipient that resolves to a
// registered agent wins; To is consulted before CC.
func (r *Router) Classify(msg *models.InboundMessage) (models.Category, Agent) {
	recipients := append(append([]models.EmailAddress{}, msg.To...), msg.CC...)
	for _, rcpt := range recipients {
		agent, ok := r.agents.Lookup(agentNameFor(rcpt.Address))
		if !ok {
			continue
		}
		switch agent.Kind {
		case AgentIntelligence:
			return models.CategoryIntelligenceSubmission, agent
		case AgentTaskIntake:
			return models.CategoryTaskRequest, agent
		}
	}
	return models.CategoryOther, Agent{}
}

// Process is the admission queue's handler: classify, gate through the
// security pipeline, then dispatch. It returns a human-readable outcome
// for the job record.
func (r *Router) Process(ctx context.Context, msg *models.InboundMessage) (string, error) {
	category, agent := r.Classify(msg)
	if category == models.CategoryOther {
		slog.Info("no matching agent for message", "message_id", msg.MessageID)
		return "no matching agent, ignored", nil
	}

	pctx := security.Context{OwnerID: agent.OwnerID, OwnerEmail: agent.OwnerEmail}
	secured, err := r.pipeline.RunSecured(ctx, msg, pctx, agent.Name, func(ctx context.Context, msg *models.InboundMessage) (string, error) {
		result, err := r.Dispatch(ctx, msg, category, agent)
		if result == nil {
			return "", err
		}
		// A retryable dispatch carries both an outcome and an error;
		// keep them paired for the queue.
		return result.Outcome, err
	})
	if err != nil {
		return secured.Outcome, err
	}

	if !secured.Invoked {
		slog.Info("message rejected by security pipeline",
			"message_id", msg.MessageID,
			"agent", agent.Name,
			"quarantine", secured.Validation.Quarantine,
			"reason", secured.Validation.Reason,
		)
	}
	return secured.Outcome, nil
}

// DispatchResult summarises what a dispatch produced.
type DispatchResult struct {
	Category        models.Category
	Outcome         string
	SubmissionID    string
	TasksCreated    int
	TaskErrors      []string
	AssignedUserIDs []string
}

// Dispatch invokes the flow matching the category.
func (r *Router) Dispatch(ctx context.Context, msg *models.InboundMessage, category models.Category, agent Agent) (*DispatchResult, error) {
	switch category {
	case models.CategoryIntelligenceSubmission:
		return r.dispatchSubmission(ctx, msg, agent)
	case models.CategoryTaskRequest:
		return r.dispatchTasks(ctx, msg, agent)
	default:
		return &DispatchResult{Category: category, Outcome: "no matching agent, ignored"}, nil
	}
}

// dispatchSubmission handles an intelligence report. Submissions are
// idempotent on message ID: a duplicate delivery never creates a second
// record. An analysis failure is reported as retryable: no partial
// record is created and no processed record is written, so a future
// redelivery runs the analysis again.
func (r *Router) dispatchSubmission(ctx context.Context, msg *models.InboundMessage, agent Agent) (*DispatchResult, error) {
	result := &DispatchResult{Category: models.CategoryIntelligenceSubmission}

	existing, err := r.storage.GetSubmission(ctx, msg.MessageID)
	if err != nil {
		return nil, fmt.Errorf("look up submission: %w", err)
	}
	if existing != nil {
		result.SubmissionID = existing.ID
		result.Outcome = "duplicate submission, skipped"
		return result, nil
	}

	parsed, err := r.analyzer.ParseSubmission(ctx, msg.Subject, msg.Body.Content, msg.From.Address)
	if err != nil {
		slog.Error("submission analysis failed",
			"message_id", msg.MessageID,
			"agent", agent.Name,
			"error", err,
		)
		result.Outcome = "submission analysis failed, skipped"
		return result, fmt.Errorf("%w: parse submission: %v", queue.ErrRetryable, err)
	}

	sub := &store.Submission{
		ID:        uuid.New().String(),
		MessageID: msg.MessageID,
		AgentName: agent.Name,
		Sender:    msg.From.Address,
		Sentiment: parsed.Sentiment,
		Topics:    parsed.Topics,
		ItemCount: len(parsed.Items),
	}
	if err := r.storage.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	slog.Info("intelligence submission recorded",
		"message_id", msg.MessageID,
		"agent", agent.Name,
		"submission_id", sub.ID,
		"topics", len(parsed.Topics),
	)

	result.SubmissionID = sub.ID
	result.Outcome = "submission recorded"
	return result, nil
}

// dispatchTasks handles a task-request email. Extraction failures
// propagate as errors; per-task creation failures are collected so one
// bad task never blocks the rest of the batch.
func (r *Router) dispatchTasks(ctx context.Context, msg *models.InboundMessage, agent Agent) (*DispatchResult, error) {
	result := &DispatchResult{Category: models.CategoryTaskRequest}

	extracted, err := r.analyzer.ExtractTasks(ctx, msg.Subject, msg.Body.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(extracted) == 0 {
		result.Outcome = "no tasks extracted"
		return result, nil
	}

	project, err := r.resolveProject(ctx, agent.OwnerID, msg.Subject)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}

	for _, et := range extracted {
		assignedTo, err := r.createTask(ctx, project, agent, et)
		if err != nil {
			slog.Error("task creation failed",
				"message_id", msg.MessageID,
				"title", et.Title,
				"error", err,
			)
			result.TaskErrors = append(result.TaskErrors, fmt.Sprintf("%s: %v", et.Title, err))
			continue
		}
		result.TasksCreated++
		if assignedTo != "" {
			result.AssignedUserIDs = append(result.AssignedUserIDs, assignedTo)
		}
	}

	slog.Info("task request processed",
		"message_id", msg.MessageID,
		"agent", agent.Name,
		"created", result.TasksCreated,
		"errors", len(result.TaskErrors),
	)

	result.Outcome = fmt.Sprintf("created %d of %d tasks", result.TasksCreated, len(extracted))
	return result, nil
}

// createTask persists one extracted task, resolving or creating the
// assignee and recording the assignment.
func (r *Router) createTask(ctx context.Context, project *store.Project, agent Agent, et analysis.ExtractedTask) (assignedTo string, err error) {
	task := &store.Task{
		ID:          uuid.New().String(),
		ProjectID:   project.ID,
		Title:       et.Title,
		Description: et.Description,
		Status:      "open",
		CreatedBy:   agent.OwnerID,
	}
	if err := r.storage.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	if et.AssigneeEmail == "" {
		return "", nil
	}

	assignee, err := r.resolveUser(ctx, et.AssigneeEmail)
	if err != nil {
		return "", fmt.Errorf("resolve assignee %s: %w", et.AssigneeEmail, err)
	}

	if err := r.storage.CreateAssignment(ctx, task.ID, assignee.ID, agent.OwnerID); err != nil {
		return "", fmt.Errorf("create assignment: %w", err)
	}

	r.notifier.NotifyAssignment(ctx, task.ID, assignee.ID, agent.OwnerID)
	return assignee.ID, nil
}

// resolveUser finds the user for an email address, creating a
// placeholder account when none exists.
func (r *Router) resolveUser(ctx context.Context, email string) (*store.User, error) {
	user, err := r.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &store.User{
		ID:    uuid.New().String(),
		Email: strings.ToLower(email),
	}
	if err := r.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// resolveProject finds or creates the destination project for a
// task-request email, named after the cleaned subject line.
func (r *Router) resolveProject(ctx context.Context, ownerID, subject string) (*store.Project, error) {
	name := projectNameFromSubject(subject)

	project, err := r.storage.GetProjectByName(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	project = &store.Project{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Name:    name,
	}
	if err := r.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// projectNameFromSubject strips reply/forward prefixes; an empty result
// falls back to "Inbox".
func projectNameFromSubject(subject string) string {
	name := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(name)
		switch {
		case strings.HasPrefix(lower, "re:"):
			name = strings.TrimSpace(name[3:])
		case strings.HasPrefix(lower, "fwd:"):
			name = strings.TrimSpace(name[4:])
		case strings.HasPrefix(lower, "fw:"):
			name = strings.TrimSpace(name[3:])
		default:
			if name == "" {
				return "Inbox"
			}
			return name
		}
	}
}

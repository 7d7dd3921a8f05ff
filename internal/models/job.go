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

package models

import "time"

// JobState tracks where a queue job is in its lifecycle.
// Transitions are monotonic: Queued → Processing → {Completed | Failed}.
// A job never re-enters Queued and a Failed job stays Failed.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// QueueJob is the admission queue's record of one inbound message.
// It is owned exclusively by the queue; only the worker executing the
// job mutates it, and readers always receive copies.
type QueueJob struct {
	JobID      string          `json:"job_id"`
	Message    *InboundMessage `json:"message"`
	OwnerID    string          `json:"owner_id"`
	State      JobState        `json:"state"`
	Outcome    string          `json:"outcome,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// QueueStatus is a point-in-time snapshot of queue counters.
type QueueStatus struct {
	Queued            int `json:"queued"`
	Processing        int `json:"processing"`
	Completed         int `json:"completed"`
	Failed            int `json:"failed"`
	CurrentJobs       int `json:"current_jobs"`
	MaxConcurrentJobs int `json:"max_concurrent_jobs"`
	TotalInQueue      int `json:"total_in_queue"`
}

// ProcessedMessageRecord marks a message identifier as handled.
// Records are append-only: at most one record per message ID ever exists,
// and its presence is the dedup guard against reprocessing.
type ProcessedMessageRecord struct {
	MessageID string    `json:"message_id"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

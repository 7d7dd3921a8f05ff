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

// Package queue implements the bounded-concurrency admission queue.
// Jobs drain FIFO through a fixed worker pool; at most MaxConcurrentJobs
// execute at once. Job states move one way only (Queued → Processing →
// Completed or Failed) and every transition emits a synchronous
// lifecycle event. A failing or panicking handler fails its own job and
// nothing else: the pool never stops on a bad message.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskbrief/intake/internal/dedup"
	"github.com/taskbrief/intake/internal/events"
	"github.com/taskbrief/intake/internal/models"
)

// Handler processes one admitted message and returns a human-readable
// outcome. Any error (or panic) marks the job Failed.
type Handler func(ctx context.Context, msg *models.InboundMessage) (string, error)

// Sentinel errors returned by Enqueue.
var (
	ErrQueueFull   = errors.New("queue: pending buffer full")
	ErrQueueClosed = errors.New("queue: closed")
)

// ErrRetryable, wrapped into a handler error, reports that the handler
// finished with a reportable outcome but the message must stay eligible
// for redelivery: the job completes with that outcome, and no processed
// record is written, so a redelivery is processed again instead of being
// skipped as a duplicate.
var ErrRetryable = errors.New("queue: message retryable")

// OutcomeDuplicate is recorded when the dedup guard short-circuits a job.
const OutcomeDuplicate = "duplicate, skipped"

// Config sizes the queue.
type Config struct {
	// MaxConcurrentJobs bounds the worker pool. Default 5.
	MaxConcurrentJobs int
	// Capacity bounds the pending FIFO buffer. Default 1024.
	Capacity int
	// HistoryLimit caps retained job records; oldest evict first.
	// Default 500.
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 5
	}
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 500
	}
	return c
}

// Queue admits inbound messages and schedules them onto the worker pool.
type Queue struct {
	cfg     Config
	handler Handler
	records dedup.Store
	bus     *events.Bus

	pending chan *models.QueueJob

	mu         sync.Mutex
	closed     bool
	history    []*models.QueueJob
	reserved   int // pending slots handed out but not yet drained
	enqueuing  int // Enqueue calls admitted but not yet past their send
	enqIdle    *sync.Cond
	queued     int
	processing int
	completed  int
	failed     int

	wg sync.WaitGroup
}

// New creates an admission queue. The handler runs inside pool workers;
// records is the processed-message dedup store.
func New(cfg Config, records dedup.Store, bus *events.Bus, handler Handler) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		cfg:     cfg,
		handler: handler,
		records: records,
		bus:     bus,
		pending: make(chan *models.QueueJob, cfg.Capacity),
	}
	q.enqIdle = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool. Workers exit when the context is
// cancelled or the queue is closed.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.MaxConcurrentJobs; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	slog.Info("admission queue started",
		"max_concurrent_jobs", q.cfg.MaxConcurrentJobs,
		"capacity", q.cfg.Capacity,
	)
}

// Close stops accepting new jobs, lets queued jobs drain, and waits for
// in-flight jobs to finish. In-flight jobs run to completion; there is
// no cancellation of a dequeued job.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	// Enqueue calls admitted before closed was set may still be between
	// their closed check and their channel send. Closing under a racing
	// send would panic, so wait them out first.
	for q.enqueuing > 0 {
		q.enqIdle.Wait()
	}
	q.mu.Unlock()

	close(q.pending)
	q.wg.Wait()
}

// Enqueue admits a message and returns its job ID. It never blocks: a
// full pending buffer returns ErrQueueFull.
func (q *Queue) Enqueue(msg *models.InboundMessage, ownerID string) (string, error) {
	job := &models.QueueJob{
		JobID:      newJobID(),
		Message:    msg,
		OwnerID:    ownerID,
		State:      models.JobQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	if q.reserved >= q.cfg.Capacity {
		q.mu.Unlock()
		return "", ErrQueueFull
	}
	q.reserved++
	q.enqueuing++
	q.queued++
	q.record(job)
	q.mu.Unlock()

	// Emit before the channel send so a fast worker cannot publish
	// emailProcessingStarted ahead of emailQueued.
	q.bus.Emit(events.JobEvent{
		Type:      events.EmailQueued,
		JobID:     job.JobID,
		MessageID: msg.MessageID,
		State:     models.JobQueued,
		At:        job.EnqueuedAt,
	})

	// Cannot block: the slot was reserved above and only Enqueue sends.
	q.pending <- job

	q.mu.Lock()
	q.enqueuing--
	if q.enqueuing == 0 {
		q.enqIdle.Broadcast()
	}
	q.mu.Unlock()

	return job.JobID, nil
}

// Status returns a point-in-time snapshot of queue counters.
func (q *Queue) Status() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.QueueStatus{
		Queued:            q.queued,
		Processing:        q.processing,
		Completed:         q.completed,
		Failed:            q.failed,
		CurrentJobs:       q.processing,
		MaxConcurrentJobs: q.cfg.MaxConcurrentJobs,
		TotalInQueue:      q.queued + q.processing,
	}
}

// History returns copies of the most recent jobs, newest first. Each
// call takes a fresh snapshot; this is not a live stream.
func (q *Queue) History(limit int) []models.QueueJob {
	if limit <= 0 {
		limit = 50
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.history)
	if limit > n {
		limit = n
	}
	out := make([]models.QueueJob, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, copyJob(q.history[i]))
	}
	return out
}

// Job returns a copy of one job record by ID.
func (q *Queue) Job(jobID string) (models.QueueJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.history {
		if job.JobID == jobID {
			return copyJob(job), true
		}
	}
	return models.QueueJob{}, false
}

// record appends a job to history, evicting the oldest entries past the
// retention cap. Caller holds q.mu.
func (q *Queue) record(job *models.QueueJob) {
	q.history = append(q.history, job)
	if excess := len(q.history) - q.cfg.HistoryLimit; excess > 0 {
		q.history = append([]*models.QueueJob(nil), q.history[excess:]...)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.pending:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

// run executes one job through its full lifecycle. All job mutations
// happen under q.mu so history readers never observe a partial record.
func (q *Queue) run(ctx context.Context, job *models.QueueJob) {
	started := time.Now().UTC()
	q.mu.Lock()
	q.reserved--
	q.queued--
	q.processing++
	job.State = models.JobProcessing
	job.StartedAt = &started
	q.mu.Unlock()

	q.bus.Emit(events.JobEvent{
		Type:      events.EmailProcessingStarted,
		JobID:     job.JobID,
		MessageID: job.Message.MessageID,
		State:     models.JobProcessing,
		At:        started,
	})

	outcome, err := q.execute(ctx, job)

	finished := time.Now().UTC()
	ev := events.JobEvent{
		JobID:     job.JobID,
		MessageID: job.Message.MessageID,
		At:        finished,
	}

	q.mu.Lock()
	q.processing--
	job.FinishedAt = &finished
	if err != nil {
		q.failed++
		job.State = models.JobFailed
		job.Error = err.Error()
		ev.Type = events.EmailProcessingFailed
		ev.Error = job.Error
	} else {
		q.completed++
		job.State = models.JobCompleted
		job.Outcome = outcome
		ev.Type = events.EmailProcessingCompleted
		ev.Outcome = outcome
	}
	ev.State = job.State
	q.mu.Unlock()

	if err != nil {
		slog.Error("job failed",
			"job_id", job.JobID,
			"message_id", job.Message.MessageID,
			"error", err,
		)
	} else {
		slog.Info("job completed",
			"job_id", job.JobID,
			"message_id", job.Message.MessageID,
			"outcome", outcome,
		)
	}

	q.bus.Emit(ev)
}

// execute applies the dedup guard and runs the handler. A processed
// record is written only after the handler returns without error, so a
// failed or retryable message can be retried by a later redelivery. The
// guard is best-effort: two copies of the same message racing through
// the pool before either is marked can both run.
func (q *Queue) execute(ctx context.Context, job *models.QueueJob) (string, error) {
	messageID := job.Message.MessageID

	seen, err := q.records.Seen(ctx, messageID)
	if err != nil {
		slog.Warn("dedup check failed, proceeding", "message_id", messageID, "error", err)
	} else if seen {
		slog.Debug("skipping duplicate message", "message_id", messageID)
		return OutcomeDuplicate, nil
	}

	outcome, err := q.invoke(ctx, job.Message)
	if errors.Is(err, ErrRetryable) {
		slog.Info("message left retryable",
			"message_id", messageID,
			"outcome", outcome,
			"error", err,
		)
		return outcome, nil
	}
	if err != nil {
		return "", err
	}

	if err := q.records.Mark(ctx, messageID, outcome); err != nil {
		slog.Warn("failed to mark message processed", "message_id", messageID, "error", err)
	}
	return outcome, nil
}

// invoke calls the handler with panic isolation: a panicking handler
// fails its job without taking down the worker.
func (q *Queue) invoke(ctx context.Context, msg *models.InboundMessage) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return q.handler(ctx, msg)
}

// newJobID builds a unique job identifier: enqueue timestamp plus a
// random suffix. IDs are never reused.
func newJobID() string {
	return fmt.Sprintf("job_%d_%s", time.Now().UnixNano(), uuid.New().String()[:8])
}

func copyJob(job *models.QueueJob) models.QueueJob {
	cp := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		cp.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

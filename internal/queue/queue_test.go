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

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskbrief/intake/internal/dedup"
	"github.com/taskbrief/intake/internal/events"
	"github.com/taskbrief/intake/internal/models"
)

func testMsg(id string) *models.InboundMessage {
	return &models.InboundMessage{
		MessageID: id,
		Subject:   "hello",
		From:      models.EmailAddress{Address: "alice@example.com"},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// eventLog records bus events in emission order.
type eventLog struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (l *eventLog) listen(ev events.JobEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []events.JobEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.JobEvent(nil), l.events...)
}

func TestQueue_ProcessesJobsAndRecordsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Config{MaxConcurrentJobs: 2}, dedup.NewMemoryStore(0), events.NewBus(),
		func(_ context.Context, msg *models.InboundMessage) (string, error) {
			return "processed " + msg.MessageID, nil
		})
	q.Start(ctx)

	jobID, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool { return q.Status().Completed == 1 })

	job, ok := q.Job(jobID)
	if !ok {
		t.Fatalf("job %s not found in history", jobID)
	}
	if job.State != models.JobCompleted {
		t.Errorf("state = %s, want %s", job.State, models.JobCompleted)
	}
	if job.Outcome != "processed msg-1" {
		t.Errorf("outcome = %q", job.Outcome)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Error("completed job missing timestamps")
	}
	q.Close()
}

func TestQueue_ConcurrencyNeverExceedsLimit(t *testing.T) {
	const limit = 3
	const jobs = 20

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var current, peak int64
	q := New(Config{MaxConcurrentJobs: limit}, dedup.NewMemoryStore(0), events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) {
			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return "done", nil
		})
	q.Start(ctx)

	for i := 0; i < jobs; i++ {
		if _, err := q.Enqueue(testMsg(fmt.Sprintf("msg-%d", i)), "user-1"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if cur := q.Status().CurrentJobs; cur > limit {
			t.Fatalf("CurrentJobs = %d, exceeds limit %d", cur, limit)
		}
	}

	waitFor(t, func() bool {
		s := q.Status()
		return s.Completed+s.Failed == jobs
	})

	if p := atomic.LoadInt64(&peak); p > limit {
		t.Errorf("peak concurrency = %d, want <= %d", p, limit)
	}
	s := q.Status()
	if s.Completed != jobs || s.Failed != 0 {
		t.Errorf("completed/failed = %d/%d, want %d/0", s.Completed, s.Failed, jobs)
	}
	q.Close()
}

func TestQueue_DuplicateMessageSkipsHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var invocations int64
	q := New(Config{MaxConcurrentJobs: 1}, dedup.NewMemoryStore(0), events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) {
			atomic.AddInt64(&invocations, 1)
			return "processed", nil
		})
	q.Start(ctx)

	first, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Completed == 1 })

	second, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Completed == 2 })

	if n := atomic.LoadInt64(&invocations); n != 1 {
		t.Errorf("handler invoked %d times, want 1", n)
	}

	job, _ := q.Job(second)
	if job.Outcome != OutcomeDuplicate {
		t.Errorf("duplicate outcome = %q, want %q", job.Outcome, OutcomeDuplicate)
	}
	if job.State != models.JobCompleted {
		t.Errorf("duplicate state = %s, want %s", job.State, models.JobCompleted)
	}
	if first == second {
		t.Error("job IDs reused across enqueues")
	}
	q.Close()
}

func TestQueue_FailedJobIsNotMarkedProcessed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int64
	q := New(Config{MaxConcurrentJobs: 1}, dedup.NewMemoryStore(0), events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) {
			if atomic.AddInt64(&attempts, 1) == 1 {
				return "", errors.New("transient failure")
			}
			return "processed", nil
		})
	q.Start(ctx)

	jobID, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Failed == 1 })

	job, _ := q.Job(jobID)
	if job.State != models.JobFailed {
		t.Fatalf("state = %s, want %s", job.State, models.JobFailed)
	}
	if job.Error != "transient failure" {
		t.Errorf("error = %q", job.Error)
	}

	// Redelivery of a failed message must be retried, not deduplicated.
	if _, err := q.Enqueue(testMsg("msg-1"), "user-1"); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Completed == 1 })

	if n := atomic.LoadInt64(&attempts); n != 2 {
		t.Errorf("handler invoked %d times, want 2", n)
	}
	q.Close()
}

func TestQueue_RetryableOutcomeIsNotMarkedProcessed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int64
	q := New(Config{MaxConcurrentJobs: 1}, dedup.NewMemoryStore(0), events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) {
			if atomic.AddInt64(&attempts, 1) == 1 {
				return "analysis failed, skipped", fmt.Errorf("%w: analysis down", ErrRetryable)
			}
			return "processed", nil
		})
	q.Start(ctx)

	first, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Completed == 1 })

	// The job completes with the handler's outcome, not as a failure.
	job, _ := q.Job(first)
	if job.State != models.JobCompleted {
		t.Fatalf("state = %s, want %s", job.State, models.JobCompleted)
	}
	if job.Outcome != "analysis failed, skipped" {
		t.Errorf("outcome = %q", job.Outcome)
	}
	if job.Error != "" {
		t.Errorf("error = %q, want empty", job.Error)
	}

	// No processed record was written, so a redelivery runs the handler
	// again instead of short-circuiting as a duplicate.
	second, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Completed == 2 })

	if n := atomic.LoadInt64(&attempts); n != 2 {
		t.Errorf("handler invoked %d times, want 2", n)
	}
	retried, _ := q.Job(second)
	if retried.Outcome != "processed" {
		t.Errorf("redelivery outcome = %q, want %q", retried.Outcome, "processed")
	}
	q.Close()
}

func TestQueue_EnqueueRacingCloseNeverPanics(t *testing.T) {
	for i := 0; i < 25; i++ {
		ctx, cancel := context.WithCancel(context.Background())

		q := New(Config{MaxConcurrentJobs: 2}, dedup.NewMemoryStore(0), events.NewBus(),
			func(context.Context, *models.InboundMessage) (string, error) {
				return "done", nil
			})
		q.Start(ctx)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				<-start
				for j := 0; ; j++ {
					_, err := q.Enqueue(testMsg(fmt.Sprintf("msg-%d-%d-%d", i, g, j)), "user-1")
					if errors.Is(err, ErrQueueClosed) {
						return
					}
				}
			}(g)
		}

		close(start)
		q.Close()
		wg.Wait()
		cancel()
	}
}

func TestQueue_PanickingHandlerFailsOnlyItsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Config{MaxConcurrentJobs: 1}, dedup.NewMemoryStore(0), events.NewBus(),
		func(_ context.Context, msg *models.InboundMessage) (string, error) {
			if msg.MessageID == "msg-bad" {
				panic("handler bug")
			}
			return "processed", nil
		})
	q.Start(ctx)

	badID, err := q.Enqueue(testMsg("msg-bad"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	goodID, err := q.Enqueue(testMsg("msg-good"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool {
		s := q.Status()
		return s.Completed == 1 && s.Failed == 1
	})

	bad, _ := q.Job(badID)
	if bad.State != models.JobFailed {
		t.Errorf("panicked job state = %s, want %s", bad.State, models.JobFailed)
	}
	good, _ := q.Job(goodID)
	if good.State != models.JobCompleted {
		t.Errorf("following job state = %s, want %s", good.State, models.JobCompleted)
	}
	q.Close()
}

func TestQueue_EventOrderingPerJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	log := &eventLog{}
	bus.SubscribeAll(log.listen)

	q := New(Config{MaxConcurrentJobs: 4}, dedup.NewMemoryStore(0), bus,
		func(_ context.Context, msg *models.InboundMessage) (string, error) {
			if msg.MessageID == "msg-2" {
				return "", errors.New("boom")
			}
			return "done", nil
		})
	q.Start(ctx)

	const jobs = 4
	for i := 0; i < jobs; i++ {
		if _, err := q.Enqueue(testMsg(fmt.Sprintf("msg-%d", i)), "user-1"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	waitFor(t, func() bool {
		s := q.Status()
		return s.Completed+s.Failed == jobs
	})
	q.Close()

	// Each job: queued, then started, then exactly one terminal event.
	perJob := map[string][]events.Type{}
	for _, ev := range log.snapshot() {
		perJob[ev.JobID] = append(perJob[ev.JobID], ev.Type)
	}
	if len(perJob) != jobs {
		t.Fatalf("saw events for %d jobs, want %d", len(perJob), jobs)
	}
	for jobID, seq := range perJob {
		if len(seq) != 3 {
			t.Fatalf("job %s event sequence %v, want 3 events", jobID, seq)
		}
		if seq[0] != events.EmailQueued || seq[1] != events.EmailProcessingStarted {
			t.Errorf("job %s sequence %v, want queued then started first", jobID, seq)
		}
		if seq[2] != events.EmailProcessingCompleted && seq[2] != events.EmailProcessingFailed {
			t.Errorf("job %s terminal event = %s", jobID, seq[2])
		}
	}
}

func TestQueue_EnqueueFullAndClosed(t *testing.T) {
	// No workers started: nothing drains, so capacity fills.
	q := New(Config{MaxConcurrentJobs: 1, Capacity: 2}, dedup.NewMemoryStore(0), events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) { return "done", nil })

	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(testMsg(fmt.Sprintf("msg-%d", i)), "user-1"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := q.Enqueue(testMsg("msg-overflow"), "user-1"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("enqueue past capacity: err = %v, want ErrQueueFull", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Close()

	if _, err := q.Enqueue(testMsg("msg-late"), "user-1"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("enqueue after close: err = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_HistoryEvictsOldestAndReturnsNewestFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Config{MaxConcurrentJobs: 1, HistoryLimit: 3}, dedup.NewMemoryStore(0), events.NewBus(),
		func(_ context.Context, msg *models.InboundMessage) (string, error) {
			return msg.MessageID, nil
		})
	q.Start(ctx)

	var lastID string
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(testMsg(fmt.Sprintf("msg-%d", i)), "user-1")
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		lastID = id
		waitFor(t, func() bool { return q.Status().Completed == i+1 })
	}
	q.Close()

	history := q.History(0)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].JobID != lastID {
		t.Errorf("history[0] = %s, want newest job %s", history[0].JobID, lastID)
	}
	// The two oldest jobs were evicted.
	for _, job := range history {
		if job.Message.MessageID == "msg-0" || job.Message.MessageID == "msg-1" {
			t.Errorf("evicted job %s still in history", job.Message.MessageID)
		}
	}

	if got := q.History(1); len(got) != 1 || got[0].JobID != lastID {
		t.Errorf("History(1) = %d entries, first %s", len(got), got[0].JobID)
	}
}

func TestQueue_CloseDrainsQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var done int64
	q := New(Config{MaxConcurrentJobs: 2}, dedup.NewMemoryStore(0), events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&done, 1)
			return "done", nil
		})
	q.Start(ctx)

	const jobs = 10
	for i := 0; i < jobs; i++ {
		if _, err := q.Enqueue(testMsg(fmt.Sprintf("msg-%d", i)), "user-1"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	q.Close() // must block until every accepted job ran

	if n := atomic.LoadInt64(&done); n != jobs {
		t.Errorf("handler completed %d jobs before Close returned, want %d", n, jobs)
	}
	s := q.Status()
	if s.Completed != jobs {
		t.Errorf("completed = %d, want %d", s.Completed, jobs)
	}
}

func TestQueue_DedupErrorProceedsWithProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Config{MaxConcurrentJobs: 1}, failingDedup{}, events.NewBus(),
		func(context.Context, *models.InboundMessage) (string, error) {
			return "processed", nil
		})
	q.Start(ctx)

	jobID, err := q.Enqueue(testMsg("msg-1"), "user-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Status().Completed == 1 })

	job, _ := q.Job(jobID)
	if job.Outcome != "processed" {
		t.Errorf("outcome = %q, want the handler to run despite dedup errors", job.Outcome)
	}
	q.Close()
}

// failingDedup errors on every call, standing in for an unreachable Redis.
type failingDedup struct{}

func (failingDedup) Seen(context.Context, string) (bool, error) {
	return false, errors.New("dedup store unavailable")
}

func (failingDedup) Mark(context.Context, string, string) error {
	return errors.New("dedup store unavailable")
}

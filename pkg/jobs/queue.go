package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the queue already holds BufferSize jobs.
var ErrQueueFull = errors.New("queue is full")

// Job represents a queued background task. Jobs sharing any key never run at the same time.
type Job struct {
	ID       string
	Type     string
	Keys     []string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job. Failures are logged, never retried.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending int
	Running int
}

// Queue is an in-memory dispatcher backed by a fixed worker pool. Jobs whose keys overlap a
// running job are held in FIFO order until that job finishes.
type Queue struct {
	name    string
	handler Handler

	workers    int
	bufferSize int
	logger     *zap.Logger

	ready   chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	pending []Job
	active  map[string]string
	running int
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		ready:      make(chan Job, cfg.Workers),
		active:     make(map[string]string),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.dispatchLocked()
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit. Held jobs are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()

	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	q.started = false
	q.mu.Unlock()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name, "dropped", dropped)
}

// Enqueue adds a job. It starts as soon as a worker is free and none of its keys are busy.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if q.ctx.Err() != nil {
		return fmt.Errorf("queue %s stopped: %w", q.name, q.ctx.Err())
	}
	if len(q.pending)+q.running >= q.bufferSize {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	q.pending = append(q.pending, job)
	q.dispatchLocked()
	return nil
}

// Remove drops a job that has not started yet. It reports whether the job was found.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.pending {
		if job.ID == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.dispatchLocked()
			return true
		}
	}
	return false
}

// Stats reports pending and running counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pending: len(q.pending), Running: q.running}
}

// dispatchLocked hands eligible jobs to workers. A held job also blocks its keys for jobs
// queued after it so overlapping jobs keep submission order.
func (q *Queue) dispatchLocked() {
	if !q.started || q.ctx.Err() != nil {
		return
	}
	blocked := make(map[string]struct{})
	remaining := q.pending[:0]
	for _, job := range q.pending {
		if q.running >= q.workers || q.conflictsLocked(job, blocked) {
			for _, key := range job.Keys {
				blocked[key] = struct{}{}
			}
			remaining = append(remaining, job)
			continue
		}
		for _, key := range job.Keys {
			q.active[key] = job.ID
		}
		q.running++
		q.ready <- job
	}
	q.pending = remaining
}

func (q *Queue) conflictsLocked(job Job, blocked map[string]struct{}) bool {
	for _, key := range job.Keys {
		if _, busy := q.active[key]; busy {
			return true
		}
		if _, held := blocked[key]; held {
			return true
		}
	}
	return false
}

func (q *Queue) release(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, key := range job.Keys {
		if q.active[key] == job.ID {
			delete(q.active, key)
		}
	}
	q.running--
	q.dispatchLocked()
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.ready:
			q.run(workerID, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	defer q.release(job)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Sugar().Errorw("job panicked", "queue", q.name, "job_id", job.ID, "worker", workerID, "panic", r)
		}
	}()
	if err := q.handler(q.ctx, job); err != nil {
		q.logger.Sugar().Errorw("job failed", "queue", q.name, "job_id", job.ID, "type", job.Type, "worker", workerID, "error", err)
	}
}

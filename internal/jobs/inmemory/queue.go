package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/jobs"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Options configures a Queue.
type Options struct {
	// BufferSize is how many jobs can wait before PublishImportCSV blocks.
	BufferSize int
	// Workers is the number of jobs processed concurrently.
	Workers int
	// Backoff is multiplied by the retry count to delay a retry.
	Backoff time.Duration
	Log     zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs do not survive a restart.
type Queue struct {
	jobChan   chan *jobs.ImportCSVJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	opts      Options
	log       zerolog.Logger
	closed    bool
}

// NewQueue creates a new in-memory job queue. store may be nil.
func NewQueue(store jobs.JobStore, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		jobChan:   make(chan *jobs.ImportCSVJob, opts.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		opts:      opts,
		log:       opts.Log,
	}
}

// PublishImportCSV implements the Publisher interface. It blocks while the
// buffer is full, until ctx is done or the queue is stopped.
func (q *Queue) PublishImportCSV(ctx context.Context, job *jobs.ImportCSVJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if err := q.save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start implements the Consumer interface. Jobs are handled by
// Options.Workers goroutines.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.opts.Workers).Msg("Job workers started")
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single attempt and schedules a retry when allowed.
func (q *Queue) processJob(ctx context.Context, job *jobs.ImportCSVJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	_ = q.save(ctx, job)

	log := q.log.With().Str("job_id", job.JobID).Int("attempt", job.RetryCount+1).Logger()
	log.Info().Msg("Job started")

	err := q.run(ctx, job, handler)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Dur("duration", completedAt.Sub(now)).Msg("Job succeeded")
	case !jobs.IsPermanent(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		backoff := time.Duration(job.RetryCount) * q.opts.Backoff
		log.Warn().Err(err).Dur("backoff", backoff).Msg("Job failed, retrying")
		retry := *job
		time.AfterFunc(backoff, func() { q.retry(ctx, &retry) })
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Bool("permanent", jobs.IsPermanent(err)).Msg("Job failed")
	}

	_ = q.save(ctx, job)
}

// run calls the handler, turning a panic into a job failure.
func (q *Queue) run(ctx context.Context, job *jobs.ImportCSVJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jobs.Permanent(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) retry(ctx context.Context, job *jobs.ImportCSVJob) {
	job.Status = jobs.JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil
	if err := q.PublishImportCSV(ctx, job); err != nil {
		job.Status = jobs.JobStatusFailed
		_ = q.save(context.Background(), job)
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to re-enqueue job")
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.ImportCSVJob) error {
	if q.store == nil {
		return nil
	}
	return q.store.SaveJob(ctx, job)
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)

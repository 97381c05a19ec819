package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/pipeline"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeImportCSV represents a statement CSV import job.
	JobTypeImportCSV JobType = "import_csv"
)

// DefaultMaxRetries is applied to jobs published without a retry budget.
const DefaultMaxRetries = 3

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by a JobStore for unknown job ids.
var ErrJobNotFound = errors.New("job não encontrado")

// ImportCSVJob represents a job to import one uploaded statement file.
type ImportCSVJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"jobId"`

	// Filename is the name of the uploaded file.
	Filename string `json:"filename"`

	// UserID owns the statement created by the import.
	UserID int64 `json:"userId"`

	// Data holds the file bytes. It is never serialized.
	Data []byte `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"createdAt"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retryCount"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"maxRetries"`

	// Result is the summary of the last attempt.
	Result *pipeline.Result `json:"result,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ImportCSVJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ImportCSVJob) GetType() JobType {
	return JobTypeImportCSV
}

// GetStatus implements the Job interface.
func (j *ImportCSVJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishImportCSV publishes a statement import job.
	PublishImportCSV(ctx context.Context, job *ImportCSVJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed;
// wrap it with Permanent to skip the remaining retries.
type JobHandler func(ctx context.Context, job *ImportCSVJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ImportCSVJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ImportCSVJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportCSVJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by owner.
	UserID int64

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

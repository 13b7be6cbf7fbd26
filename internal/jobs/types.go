package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeScanBatch scans a batch of receipt images.
	JobTypeScanBatch JobType = "scan_batch"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting to be processed, either
	// for the first time or for a retry (RetryCount > 0).
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates the job is currently being processed.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed and will not be retried.
	JobStatusFailed JobStatus = "failed"
)

// DefaultMaxRetries is used when a job does not set MaxRetries.
const DefaultMaxRetries = 3

var (
	// ErrQueueClosed is returned when publishing to or starting a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrJobNotFound is returned by JobStore lookups.
	ErrJobNotFound = errors.New("job not found")
)

// ImageRef is one image of a scan job. Either Data or GCSURI is set.
type ImageRef struct {
	Name     string `json:"name"`
	MimeType string `json:"type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	GCSURI   string `json:"gcs_uri,omitempty"`
}

// ScanBatchJob represents a job to scan a batch of receipt images.
type ScanBatchJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// BatchID is the batch the results are stored under.
	BatchID string `json:"batch_id"`

	// Images to scan, in order.
	Images []ImageRef `json:"images"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Processed and Failed count images once the job has run.
	Processed int `json:"processed_images"`
	Failed    int `json:"failed_images"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ScanBatchJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ScanBatchJob) GetType() JobType {
	return JobTypeScanBatch
}

// GetStatus implements the Job interface.
func (j *ScanBatchJob) GetStatus() JobStatus {
	return j.Status
}

// Metadata returns a copy of the job without image bytes, for storage and
// listing.
func (j *ScanBatchJob) Metadata() *ScanBatchJob {
	c := *j
	c.Images = make([]ImageRef, len(j.Images))
	for i, img := range j.Images {
		img.Data = nil
		c.Images[i] = img
	}
	return &c
}

// Prepare fills the defaults of a job about to be published.
func (j *ScanBatchJob) Prepare(newID func() string) {
	if j.JobID == "" {
		j.JobID = newID()
	}
	if j.BatchID == "" {
		j.BatchID = j.JobID
	}
	if j.Status == "" {
		j.Status = JobStatusQueued
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.MaxRetries == 0 {
		j.MaxRetries = DefaultMaxRetries
	}
}

// Publisher publishes jobs to a queue.
type Publisher interface {
	// PublishScanBatch publishes a batch scan job.
	PublishScanBatch(ctx context.Context, job *ScanBatchJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer consumes jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *ScanBatchJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ScanBatchJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ScanBatchJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ScanBatchJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// BatchID filters jobs by batch ID.
	BatchID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

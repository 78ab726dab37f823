// Package queue provides an in-memory job queue system with worker pool
// for concurrent analysis of GPX route files.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/metrics"
)

// JobStatus represents the state of a route analysis job
type JobStatus string

// Job status constants define the lifecycle states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ErrQueueFull is returned by Enqueue when the pending buffer is full
var ErrQueueFull = errors.New("queue is full")

// ErrJobNotFound is returned for unknown job IDs
var ErrJobNotFound = errors.New("job not found")

// Job represents a route analysis job
type Job struct {
	ID           string
	FilePath     string
	Region       string
	Status       JobStatus
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Result       *JobResult
}

// JobResult contains the output of a completed analysis
type JobResult struct {
	Route            *calculator.RouteMetadata
	BackfilledPoints int
	Persisted        bool
	ProcessingTimeMS int64
}

// ProcessFunc is a function that processes a job
type ProcessFunc func(ctx context.Context, job *Job) (*JobResult, error)

// Queue manages route analysis jobs with a worker pool
type Queue struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	pendingQueue chan *Job
	workers      int
	processor    ProcessFunc
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewQueue creates a new job queue with the specified number of workers
func NewQueue(workers int, processor ProcessFunc) *Queue {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:         make(map[string]*Job),
		pendingQueue: make(chan *Job, 100),
		workers:      workers,
		processor:    processor,
		ctx:          ctx,
		cancel:       cancel,
	}

	// Start worker pool
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Enqueue adds a new analysis job for a GPX file. region is an optional
// override for name-based region inference.
func (q *Queue) Enqueue(filePath, region string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobID := uuid.New().String()

	job := &Job{
		ID:       jobID,
		FilePath: filePath,
		Region:   region,
		Status:   StatusQueued,
		QueuedAt: time.Now().UTC(),
	}

	q.jobs[jobID] = job

	// Add to pending queue (non-blocking)
	select {
	case q.pendingQueue <- job:
		return jobID, nil
	default:
		job.Status = StatusFailed
		job.ErrorMessage = ErrQueueFull.Error()
		return "", ErrQueueFull
	}
}

// GetJob retrieves a copy of a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return copyJob(job), nil
}

// ListJobs returns one page of jobs filtered by status, newest first, and
// the number of jobs matching the filter before pagination
func (q *Queue) ListJobs(status JobStatus, limit, offset int) ([]*Job, int) {
	q.mu.RLock()
	var filtered []*Job
	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			filtered = append(filtered, copyJob(job))
		}
	}
	q.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].QueuedAt.After(filtered[j].QueuedAt)
	})

	// Apply pagination
	start := offset
	if start < 0 {
		start = 0
	}
	total := len(filtered)
	if start > total {
		return []*Job{}, total
	}

	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// GetStats returns queue statistics
func (q *Queue) GetStats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":      len(q.jobs),
		"queued":     0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
	}

	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			stats["queued"]++
		case StatusProcessing:
			stats["processing"]++
		case StatusCompleted:
			stats["completed"]++
		case StatusFailed:
			stats["failed"]++
		}
	}

	return stats
}

// copyJob returns a deep copy to prevent external mutation
func copyJob(job *Job) *Job {
	jobCopy := *job
	if job.StartedAt != nil {
		startedCopy := *job.StartedAt
		jobCopy.StartedAt = &startedCopy
	}
	if job.CompletedAt != nil {
		completedCopy := *job.CompletedAt
		jobCopy.CompletedAt = &completedCopy
	}
	if job.Result != nil {
		resultCopy := *job.Result
		if job.Result.Route != nil {
			routeCopy := *job.Result.Route
			resultCopy.Route = &routeCopy
		}
		jobCopy.Result = &resultCopy
	}
	return &jobCopy
}

// worker processes jobs from the queue
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pendingQueue:
			q.processJob(job)
		}
	}
}

// processJob executes a single job
func (q *Queue) processJob(job *Job) {
	startTime := time.Now()

	// Update status to processing
	q.mu.Lock()
	job.Status = StatusProcessing
	now := time.Now().UTC()
	job.StartedAt = &now
	snapshot := copyJob(job)
	q.mu.Unlock()

	// Process the job
	result, err := q.processor(q.ctx, snapshot)

	// Update job with result
	q.mu.Lock()
	defer q.mu.Unlock()

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = result
		if result != nil {
			result.ProcessingTimeMS = time.Since(startTime).Milliseconds()
		}
	}

	metrics.QueueJobs.WithLabelValues(string(job.Status)).Inc()
}

// Shutdown gracefully shuts down the queue
func (q *Queue) Shutdown(timeout time.Duration) error {
	// Stop accepting new jobs
	q.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/repos"
)

const (
	DefaultJobWorkers   = 4
	DefaultJobQueueSize = 100
)

// ProgressFunc lets a running handler report fractional progress with a
// human-readable message.
type ProgressFunc func(progress float64, message string)

// JobHandler executes one job. The returned resultRef points at whatever the
// job produced (a batch id, an export path). A non-nil error marks the job
// failed; ctx cancellation during shutdown surfaces as an error the same way.
type JobHandler func(ctx context.Context, job *domain.Job, update ProgressFunc) (resultRef string, err error)

type JobRunner interface {
	Register(jobType string, handler JobHandler)
	Submit(ctx context.Context, payload domain.JobPayload) (*domain.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, jobType, status string, limit, offset int) ([]*domain.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

type jobRunner struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.JobRepo
	notify  JobNotifier
	workers int

	mu       sync.Mutex
	handlers map[string]JobHandler
	// active tracks per-job cancel funcs for jobs that have been dequeued.
	// Cancellation through the API only applies before a job reaches this map.
	active map[uuid.UUID]context.CancelFunc

	queue chan uuid.UUID
	wg    sync.WaitGroup
	once  sync.Once
}

func NewJobRunner(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRepo, notify JobNotifier, workers, queueSize int) JobRunner {
	if workers <= 0 {
		workers = DefaultJobWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultJobQueueSize
	}
	return &jobRunner{
		db:       db,
		log:      baseLog.With("service", "JobRunner"),
		repo:     repo,
		notify:   notify,
		workers:  workers,
		handlers: make(map[string]JobHandler),
		active:   make(map[uuid.UUID]context.CancelFunc),
		queue:    make(chan uuid.UUID, queueSize),
	}
}

func (r *jobRunner) Register(jobType string, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

func (r *jobRunner) Submit(ctx context.Context, payload domain.JobPayload) (*domain.Job, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing payload")
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	r.mu.Lock()
	_, known := r.handlers[payload.Kind()]
	r.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("unknown job type %q", payload.Kind())
	}

	payloadJSON, err := maskPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	job := &domain.Job{
		ID:        uuid.New(),
		JobType:   payload.Kind(),
		Status:    domain.JobStatusPending,
		Progress:  0,
		Payload:   payloadJSON,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	r.notify.JobCreated(job)

	select {
	case r.queue <- job.ID:
	default:
		errMsg := "job queue is full"
		_ = r.repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"error_msg":    errMsg,
			"completed_at": time.Now().UTC(),
		})
		job.Status = domain.JobStatusFailed
		r.notify.JobFailed(job, errMsg)
		return nil, fmt.Errorf("job queue is full")
	}
	r.log.Info("job submitted", "job_id", job.ID, "job_type", job.JobType)
	return job, nil
}

func (r *jobRunner) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return r.repo.GetByID(ctx, nil, id)
}

func (r *jobRunner) List(ctx context.Context, jobType, status string, limit, offset int) ([]*domain.Job, error) {
	return r.repo.List(ctx, nil, jobType, status, limit, offset)
}

// Cancel only applies to jobs that have not started executing. A running job
// finishes on its own; a terminal job stays as it is.
func (r *jobRunner) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := r.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	if domain.IsTerminalJobStatus(job.Status) {
		return nil, fmt.Errorf("job %s is already %s", id, job.Status)
	}
	if job.Status == domain.JobStatusRunning {
		return nil, fmt.Errorf("job %s is already running", id)
	}
	// Conditional write: a worker may have started the job since the read.
	cancelled, err := r.repo.CancelIfPending(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !cancelled {
		return nil, fmt.Errorf("job %s is no longer pending", id)
	}
	job.Status = domain.JobStatusCancelled
	r.notify.JobCancelled(job)
	r.log.Info("job cancelled", "job_id", id)
	return job, nil
}

func (r *jobRunner) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.repo.Delete(ctx, nil, id)
}

func (r *jobRunner) Start(ctx context.Context) {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go r.workerLoop(ctx, i)
		}
		r.log.Info("job workers started", "workers", r.workers)
	})
}

// Shutdown stops accepting queued work and waits for in-flight jobs to reach
// a terminal state, up to ctx's deadline.
func (r *jobRunner) Shutdown(ctx context.Context) error {
	close(r.queue)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job runner shutdown: %w", ctx.Err())
	}
}

func (r *jobRunner) workerLoop(ctx context.Context, worker int) {
	defer r.wg.Done()
	log := r.log.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-r.queue:
			if !ok {
				return
			}
			r.runJob(ctx, log, jobID)
		}
	}
}

func (r *jobRunner) runJob(ctx context.Context, log *logger.Logger, jobID uuid.UUID) {
	job, err := r.repo.GetByID(ctx, nil, jobID)
	if err != nil {
		log.Error("failed to load queued job", "job_id", jobID, "error", err)
		return
	}
	if job == nil || job.Status != domain.JobStatusPending {
		// Cancelled while queued, or deleted.
		return
	}

	r.mu.Lock()
	handler := r.handlers[job.JobType]
	r.mu.Unlock()
	if handler == nil {
		r.finishJob(ctx, job, "", fmt.Errorf("no handler for job type %q", job.JobType))
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.active[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.active, job.ID)
		r.mu.Unlock()
	}()

	now := time.Now().UTC()
	if err := r.repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":     domain.JobStatusRunning,
		"started_at": now,
	}); err != nil {
		log.Error("failed to mark job running", "job_id", job.ID, "error", err)
		return
	}
	job.Status = domain.JobStatusRunning
	job.StartedAt = &now
	r.notify.JobStarted(job)
	log.Info("job started", "job_id", job.ID, "job_type", job.JobType)

	update := func(progress float64, message string) {
		fields := map[string]interface{}{
			"progress": progress,
		}
		if message != "" {
			job.Metadata = appendStatusMessage(job.Metadata, message)
			fields["metadata"] = job.Metadata
		}
		if err := r.repo.UpdateFields(jobCtx, nil, job.ID, fields); err != nil {
			log.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
		}
		job.Progress = progress
		r.notify.JobProgress(job, progress, message)
	}

	resultRef, runErr := runHandler(jobCtx, handler, job, update)
	r.finishJob(ctx, job, resultRef, runErr)
}

// runHandler converts a handler panic into a job failure so a bad job cannot
// take a worker down.
func runHandler(ctx context.Context, handler JobHandler, job *domain.Job, update ProgressFunc) (resultRef string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job handler panic: %v", rec)
		}
	}()
	return handler(ctx, job, update)
}

func (r *jobRunner) finishJob(ctx context.Context, job *domain.Job, resultRef string, runErr error) {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"completed_at": now,
	}
	if runErr != nil {
		fields["status"] = domain.JobStatusFailed
		fields["error_msg"] = runErr.Error()
	} else {
		fields["status"] = domain.JobStatusCompleted
		fields["progress"] = 100.0
		fields["result_ref"] = resultRef
	}
	if err := r.repo.UpdateFields(ctx, nil, job.ID, fields); err != nil {
		r.log.Error("failed to finalize job", "job_id", job.ID, "error", err)
	}
	job.CompletedAt = &now
	if runErr != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorMsg = runErr.Error()
		r.notify.JobFailed(job, runErr.Error())
		r.log.Warn("job failed", "job_id", job.ID, "job_type", job.JobType, "error", runErr)
		return
	}
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.ResultRef = resultRef
	r.notify.JobCompleted(job)
	r.log.Info("job completed", "job_id", job.ID, "job_type", job.JobType, "result_ref", resultRef)
}

var sensitivePayloadFragments = []string{"key", "password", "secret", "token", "auth"}

// maskPayload serializes a payload for durable storage with credential-like
// top-level values replaced, since stored payloads come back verbatim on the
// API surface.
func maskPayload(payload domain.JobPayload) (datatypes.JSON, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		// Non-object payloads are stored as-is.
		return datatypes.JSON(raw), nil
	}
	for k := range asMap {
		lower := strings.ToLower(k)
		for _, frag := range sensitivePayloadFragments {
			if strings.Contains(lower, frag) {
				asMap[k] = "***REDACTED***"
				break
			}
		}
	}
	masked, err := json.Marshal(asMap)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(masked), nil
}

// statusMessageCap bounds the metadata message trail.
const statusMessageCap = 20

// appendStatusMessage adds a progress message to the job metadata's messages
// list, keeping only the most recent entries.
func appendStatusMessage(metadata datatypes.JSON, message string) datatypes.JSON {
	meta := map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			meta = map[string]any{}
		}
	}
	var messages []any
	if existing, ok := meta["messages"].([]any); ok {
		messages = existing
	}
	messages = append(messages, message)
	if len(messages) > statusMessageCap {
		messages = messages[len(messages)-statusMessageCap:]
	}
	meta["messages"] = messages
	out, err := json.Marshal(meta)
	if err != nil {
		return metadata
	}
	return datatypes.JSON(out)
}

package services

import (
	"context"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/realtime/bus"
	"github.com/yungbote/memoirvault-backend/internal/sse"
)

type JobNotifier interface {
	JobCreated(job *domain.Job)
	JobStarted(job *domain.Job)
	JobProgress(job *domain.Job, progress float64, message string)
	JobCompleted(job *domain.Job)
	JobFailed(job *domain.Job, errorMessage string)
	JobCancelled(job *domain.Job)
}

type jobNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

// NewJobNotifier publishes job lifecycle events onto the SSE bus. Lost events
// are acceptable; the jobs table stays the source of truth.
func NewJobNotifier(baseLog *logger.Logger, b bus.Bus) JobNotifier {
	return &jobNotifier{
		log: baseLog.With("service", "JobNotifier"),
		bus: b,
	}
}

func (n *jobNotifier) publish(event sse.SSEEvent, job *domain.Job, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["job_id"] = job.ID
	data["job_type"] = job.JobType
	data["status"] = job.Status
	if err := n.bus.Publish(context.Background(), sse.SSEMessage{
		Channel: sse.JobChannel(job.ID),
		Event:   event,
		Data:    data,
	}); err != nil {
		n.log.Warn("failed to publish job event", "job_id", job.ID, "event", event, "error", err)
	}
}

func (n *jobNotifier) JobCreated(job *domain.Job) {
	n.publish(sse.SSEEventJobCreated, job, nil)
}

func (n *jobNotifier) JobStarted(job *domain.Job) {
	n.publish(sse.SSEEventJobStarted, job, nil)
}

func (n *jobNotifier) JobProgress(job *domain.Job, progress float64, message string) {
	n.publish(sse.SSEEventJobProgress, job, map[string]any{
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobCompleted(job *domain.Job) {
	n.publish(sse.SSEEventJobCompleted, job, map[string]any{"result_ref": job.ResultRef})
}

func (n *jobNotifier) JobFailed(job *domain.Job, errorMessage string) {
	n.publish(sse.SSEEventJobFailed, job, map[string]any{"error": errorMessage})
}

func (n *jobNotifier) JobCancelled(job *domain.Job) {
	n.publish(sse.SSEEventJobCancelled, job, nil)
}

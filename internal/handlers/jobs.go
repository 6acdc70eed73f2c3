package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

type JobsHandler struct {
	runner services.JobRunner
}

func NewJobsHandler(runner services.JobRunner) *JobsHandler {
	return &JobsHandler{runner: runner}
}

// GET /api/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	jobs, err := h.runner.List(c.Request.Context(), c.Query("type"), c.Query("status"), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.runner.Get(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_job_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", jobID))
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel
func (h *JobsHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.runner.Cancel(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, http.StatusConflict, "cancel_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", jobID))
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/backup
func (h *JobsHandler) RunBackup(c *gin.Context) {
	job, err := h.runner.Submit(c.Request.Context(), domain.BackupPayload{})
	if err != nil {
		RespondError(c, http.StatusServiceUnavailable, "submit_job_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// DELETE /api/jobs/:id
func (h *JobsHandler) DeleteJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	deleted, err := h.runner.Delete(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_job_failed", err)
		return
	}
	if !deleted {
		RespondError(c, http.StatusConflict, "job_not_deletable", fmt.Errorf("job %s is not in a terminal state", jobID))
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

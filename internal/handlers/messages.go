package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/repos"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

type MessagesHandler struct {
	threads  repos.ThreadRepo
	messages repos.MessageRepo
	runner   services.JobRunner
}

func NewMessagesHandler(threads repos.ThreadRepo, messages repos.MessageRepo, runner services.JobRunner) *MessagesHandler {
	return &MessagesHandler{threads: threads, messages: messages, runner: runner}
}

// GET /api/threads/:id/messages
func (h *MessagesHandler) ListThreadMessages(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return
	}
	thread, err := h.threads.GetByID(c.Request.Context(), nil, threadID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_thread_failed", err)
		return
	}
	if thread == nil {
		RespondError(c, http.StatusNotFound, "thread_not_found", fmt.Errorf("thread %s not found", threadID))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	msgs, err := h.messages.ListByThread(c.Request.Context(), nil, threadID, limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_messages_failed", err)
		return
	}
	RespondOK(c, gin.H{"thread": thread, "messages": msgs})
}

// GET /api/search
func (h *MessagesHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		RespondError(c, http.StatusBadRequest, "missing_query", fmt.Errorf("missing q parameter"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := h.messages.SearchText(c.Request.Context(), nil, query, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{"messages": msgs})
}

// POST /api/threads/:id/export
func (h *MessagesHandler) ExportThread(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return
	}
	var req struct {
		Format string `json:"format" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.runner.Submit(c.Request.Context(), domain.ExportPayload{
		ThreadID: threadID,
		Format:   req.Format,
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, "submit_job_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memoirvault-backend/internal/services"
)

type DeadLetterHandler struct {
	deadLetter services.DeadLetterService
}

func NewDeadLetterHandler(deadLetter services.DeadLetterService) *DeadLetterHandler {
	return &DeadLetterHandler{deadLetter: deadLetter}
}

// GET /api/dlq
func (h *DeadLetterHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.deadLetter.ReadRecent(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "read_dlq_failed", err)
		return
	}
	RespondOK(c, gin.H{"records": records})
}

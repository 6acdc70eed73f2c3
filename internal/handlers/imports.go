package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

type ImportsHandler struct {
	ingestion services.IngestionService
	uploads   services.UploadService
	runner    services.JobRunner
}

func NewImportsHandler(ingestion services.IngestionService, uploads services.UploadService, runner services.JobRunner) *ImportsHandler {
	return &ImportsHandler{ingestion: ingestion, uploads: uploads, runner: runner}
}

// startIngestion creates the batch and submits the paired job.
func (h *ImportsHandler) startIngestion(c *gin.Context, sourceType, fileName, path string, isDir bool) {
	batch, err := h.ingestion.CreateBatch(c.Request.Context(), sourceType, fileName)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_batch_failed", err)
		return
	}
	job, err := h.runner.Submit(c.Request.Context(), domain.IngestionPayload{
		BatchID:     batch.ID,
		Path:        path,
		IsDirectory: isDir,
	})
	if err != nil {
		RespondError(c, http.StatusServiceUnavailable, "submit_job_failed", err)
		return
	}
	RespondOK(c, gin.H{"batch": batch, "job": job})
}

// POST /api/import/upload
func (h *ImportsHandler) UploadArchive(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	src, err := file.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer src.Close()

	path, err := h.uploads.SaveWhole(c.Request.Context(), file.Filename, src)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "save_upload_failed", err)
		return
	}
	h.startIngestion(c, domain.SourceTypeGenericZip, file.Filename, path, false)
}

// POST /api/import/upload/chunk
func (h *ImportsHandler) UploadChunk(c *gin.Context) {
	uploadID := c.PostForm("upload_id")
	index, err := strconv.Atoi(c.PostForm("chunk_index"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_chunk_index", err)
		return
	}
	file, err := c.FormFile("chunk")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_chunk", err)
		return
	}
	src, err := file.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_chunk", err)
		return
	}
	defer src.Close()

	if err := h.uploads.SaveChunk(c.Request.Context(), uploadID, index, src); err != nil {
		RespondError(c, http.StatusInternalServerError, "save_chunk_failed", err)
		return
	}
	RespondOK(c, gin.H{"upload_id": uploadID, "chunk_index": index})
}

// POST /api/import/upload/complete
func (h *ImportsHandler) CompleteUpload(c *gin.Context) {
	var req struct {
		UploadID string `json:"upload_id" binding:"required"`
		Filename string `json:"filename" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	path, err := h.uploads.Complete(c.Request.Context(), req.UploadID, req.Filename)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "complete_upload_failed", err)
		return
	}
	h.startIngestion(c, domain.SourceTypeGenericZip, req.Filename, path, false)
}

// POST /api/import/path
func (h *ImportsHandler) ImportPath(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "path_not_found", err)
		return
	}
	sourceType := domain.SourceTypeLocalFile
	if info.IsDir() {
		sourceType = domain.SourceTypeLocalDirectory
	}
	h.startIngestion(c, sourceType, info.Name(), req.Path, info.IsDir())
}

// GET /api/import/batches
func (h *ImportsHandler) ListBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	batches, err := h.ingestion.ListBatches(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_batches_failed", err)
		return
	}
	RespondOK(c, gin.H{"batches": batches})
}

// GET /api/import/batch/:id
func (h *ImportsHandler) GetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_batch_id", err)
		return
	}
	batch, job, err := h.ingestion.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_batch_failed", err)
		return
	}
	if batch == nil {
		RespondError(c, http.StatusNotFound, "batch_not_found", fmt.Errorf("batch %s not found", batchID))
		return
	}
	RespondOK(c, gin.H{"batch": batch, "progress": job})
}

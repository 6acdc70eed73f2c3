package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/ingest"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/platform/mediastore"
	"github.com/yungbote/memoirvault-backend/internal/platform/similarity"
	"github.com/yungbote/memoirvault-backend/internal/repos"
)

const (
	// insertBufferSize is the flush threshold for buffered message inserts.
	insertBufferSize = 500
	// progressEveryEntries throttles progress checkpoints.
	progressEveryEntries = 10

	similarityPushTimeout = 3 * time.Second
)

// IngestionService owns import batches and runs the archive pipeline as a job
// handler. The pipeline is restartable: re-running the same archive is always
// safe because file and message dedup make inserts idempotent.
type IngestionService interface {
	CreateBatch(ctx context.Context, sourceType, fileName string) (*domain.ImportBatch, error)
	HandleJob(ctx context.Context, job *domain.Job, update ProgressFunc) (string, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.ImportBatch, *domain.IngestionJob, error)
	ListBatches(ctx context.Context, limit int) ([]*domain.ImportBatch, error)
}

type ingestionService struct {
	db         *gorm.DB
	log        *logger.Logger
	batches    repos.BatchRepo
	artifacts  repos.ArtifactRepo
	threads    repos.ThreadRepo
	messages   repos.MessageRepo
	media      mediastore.Store
	similarity similarity.Pusher
	deadLetter DeadLetterService
	// open is swappable so tests can exercise enumeration failures.
	open func(path string, isDir bool) (ingest.ArchiveReader, error)
}

func NewIngestionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	batches repos.BatchRepo,
	artifacts repos.ArtifactRepo,
	threads repos.ThreadRepo,
	messages repos.MessageRepo,
	media mediastore.Store,
	sim similarity.Pusher,
	deadLetter DeadLetterService,
) IngestionService {
	return &ingestionService{
		db:         db,
		log:        baseLog.With("service", "IngestionService"),
		batches:    batches,
		artifacts:  artifacts,
		threads:    threads,
		messages:   messages,
		media:      media,
		similarity: sim,
		deadLetter: deadLetter,
		open:       ingest.Open,
	}
}

func (s *ingestionService) CreateBatch(ctx context.Context, sourceType, fileName string) (*domain.ImportBatch, error) {
	batch := &domain.ImportBatch{
		ID:         uuid.New(),
		SourceType: sourceType,
		Status:     domain.BatchStatusPending,
		FileName:   fileName,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.batches.Create(ctx, nil, batch); err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}
	s.log.Info("import batch created", "batch_id", batch.ID, "source_type", sourceType, "file_name", fileName)
	return batch, nil
}

func (s *ingestionService) GetBatch(ctx context.Context, id uuid.UUID) (*domain.ImportBatch, *domain.IngestionJob, error) {
	batch, err := s.batches.GetByID(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	if batch == nil {
		return nil, nil, nil
	}
	job, err := s.batches.GetIngestionJob(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	return batch, job, nil
}

func (s *ingestionService) ListBatches(ctx context.Context, limit int) ([]*domain.ImportBatch, error) {
	return s.batches.ListRecent(ctx, nil, limit)
}

// HandleJob is the registered handler for ingestion jobs. The returned result
// ref is the batch id.
func (s *ingestionService) HandleJob(ctx context.Context, job *domain.Job, update ProgressFunc) (string, error) {
	var payload domain.IngestionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", fmt.Errorf("decode ingestion payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("invalid ingestion payload: %w", err)
	}
	if err := s.runBatch(ctx, payload, update); err != nil {
		return payload.BatchID.String(), err
	}
	return payload.BatchID.String(), nil
}

func (s *ingestionService) runBatch(ctx context.Context, payload domain.IngestionPayload, update ProgressFunc) error {
	log := s.log.With("batch_id", payload.BatchID)
	report := domain.NewIngestionReport(payload.BatchID.String())

	reader, err := s.open(payload.Path, payload.IsDirectory)
	if err != nil {
		s.failBatch(ctx, payload.BatchID, report, err)
		return err
	}
	defer reader.Close()

	if err := s.batches.UpdateFields(ctx, nil, payload.BatchID, map[string]interface{}{
		"status": domain.BatchStatusProcessing,
	}); err != nil {
		return fmt.Errorf("mark batch processing: %w", err)
	}
	if err := s.batches.UpdateIngestionJob(ctx, nil, payload.BatchID, map[string]interface{}{
		"status": domain.JobStatusRunning,
	}); err != nil {
		log.Warn("failed to mark ingestion job running", "error", err)
	}

	total := reader.Count()
	log.Info("ingestion started", "source", payload.Path, "files", total)

	run := &batchRun{
		svc:     s,
		log:     log,
		batchID: payload.BatchID,
		report:  report,
	}

	processed := 0
	for {
		// Cancellation applies at entry boundaries so flushed work stays.
		if err := ctx.Err(); err != nil {
			flushErr := run.flush(context.WithoutCancel(ctx))
			if flushErr != nil {
				report.LogError(fmt.Sprintf("final flush: %v", flushErr))
			}
			s.failBatch(context.WithoutCancel(ctx), payload.BatchID, report, err)
			return fmt.Errorf("ingestion interrupted: %w", err)
		}

		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Enumeration failures are batch-fatal; flush what we have first.
			report.LogError(fmt.Sprintf("read archive: %v", err))
			if flushErr := run.flush(ctx); flushErr != nil {
				report.LogError(fmt.Sprintf("final flush: %v", flushErr))
			}
			s.failBatch(ctx, payload.BatchID, report, err)
			return fmt.Errorf("read archive: %w", err)
		}

		processed++
		report.FilesFound++
		s.processEntry(ctx, run, entry)

		if processed%progressEveryEntries == 0 && total > 0 {
			pct := float64(processed) / float64(total) * 100
			s.checkpointProgress(ctx, payload.BatchID, pct, update, processed, total)
		}
	}

	if err := run.flush(ctx); err != nil {
		report.LogError(fmt.Sprintf("final flush: %v", err))
	}

	report.Finish(domain.BatchStatusCompleted)
	if err := s.completeBatch(ctx, payload.BatchID, report); err != nil {
		return err
	}
	s.checkpointProgress(ctx, payload.BatchID, 100, update, processed, total)
	log.Info("ingestion finished",
		"files_found", report.FilesFound,
		"files_parsed", report.FilesParsed,
		"messages_found", report.MessagesFound,
		"messages_created", report.MessagesCreated,
		"duplicates_skipped", report.DuplicatesSkipped,
		"errors", report.Errors,
	)
	return nil
}

// batchRun carries the mutable state of one pipeline execution.
type batchRun struct {
	svc     *ingestionService
	log     *logger.Logger
	batchID uuid.UUID
	report  *domain.IngestionReport
	buffer  []*domain.Message
	// buffered tracks hashes already sitting in the buffer so one file's
	// duplicates never produce a double insert inside a single flush.
	buffered map[string]bool
}

func (s *ingestionService) processEntry(ctx context.Context, run *batchRun, entry *ingest.Entry) {
	if entry.Err != nil {
		run.report.LogError(entry.Err.Error())
		return
	}

	rawHash := ingest.FileHash(entry.Data)
	seen, err := s.artifacts.ExistsByHash(ctx, nil, rawHash)
	if err != nil {
		run.report.LogError(fmt.Sprintf("%s: check file hash: %v", entry.Path, err))
		return
	}
	if seen {
		run.log.Debug("skipping already ingested file", "path", entry.Path)
		return
	}

	switch {
	case ingest.IsConversationHTML(entry.Path):
		thread, err := ingest.ParseHTMLThread(entry.Data)
		s.processThread(ctx, run, entry, rawHash, thread, err)
	case ingest.IsConversationJSON(entry.Path):
		thread, err := ingest.ParseJSONThread(entry.Data)
		s.processThread(ctx, run, entry, rawHash, thread, err)
	case ingest.IsMediaFile(entry.Path):
		s.processMedia(ctx, run, entry, rawHash)
	default:
		s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusSkipped)
	}
}

func (s *ingestionService) processThread(ctx context.Context, run *batchRun, entry *ingest.Entry, rawHash string, raw *ingest.RawThread, parseErr error) {
	if parseErr != nil {
		run.report.LogError(fmt.Sprintf("%s: %v", entry.Path, parseErr))
		s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusError)
		return
	}
	if strings.TrimSpace(raw.Title) == "" {
		run.report.LogError(fmt.Sprintf("%s: conversation has no title", entry.Path))
		s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusError)
		return
	}

	thread, err := s.threads.GetOrCreateByTitle(ctx, nil, raw.Title)
	if err != nil {
		run.report.LogError(fmt.Sprintf("%s: resolve thread: %v", entry.Path, err))
		s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusError)
		return
	}

	run.report.FilesParsed++
	run.report.MessagesFound += len(raw.Messages)

	for _, rm := range raw.Messages {
		msg := ingest.NormalizedMessage{
			Sender:      rm.Sender,
			Content:     rm.Text,
			Timestamp:   ingest.ParseTimestamp(rm.RawTimestamp),
			ThreadTitle: raw.Title,
			SourceFile:  entry.Path,
			Tags:        ingest.SuggestTags(rm.Text),
		}
		if err := msg.Validate(); err != nil {
			run.report.LogError(fmt.Sprintf("%s: %v", entry.Path, err))
			if dlErr := s.deadLetter.Push(ctx, DeadLetterRecord{
				BatchID:    run.batchID,
				SourceFile: entry.Path,
				Reason:     err.Error(),
				Sender:     rm.Sender,
				RawContent: rm.Text,
			}); dlErr != nil {
				run.log.Warn("failed to push dead letter", "error", dlErr)
			}
			continue
		}

		var tagsJSON datatypes.JSON
		if len(msg.Tags) > 0 {
			b, _ := json.Marshal(msg.Tags)
			tagsJSON = datatypes.JSON(b)
		}
		run.append(&domain.Message{
			ID:             uuid.New(),
			ThreadID:       thread.ID,
			SenderName:     msg.Sender,
			TimestampUTC:   msg.Timestamp,
			ContentText:    msg.Content,
			ContentHash:    ingest.ContentHash(msg.Sender, msg.Timestamp, msg.Content),
			SourceBatchID:  run.batchID,
			SourceFilePath: entry.Path,
			Tags:           tagsJSON,
		})
		if len(run.buffer) >= insertBufferSize {
			if err := run.flush(ctx); err != nil {
				run.report.LogError(fmt.Sprintf("flush messages: %v", err))
			}
		}
	}

	s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusParsed)
}

func (s *ingestionService) processMedia(ctx context.Context, run *batchRun, entry *ingest.Entry, rawHash string) {
	ext := filepath.Ext(entry.Path)
	// Media is keyed by hash+ext; the same bytes under two extensions land
	// as two objects.
	_, created, err := s.media.SaveIfAbsent(ctx, rawHash, ext, entry.Data)
	if err != nil {
		run.report.LogError(fmt.Sprintf("%s: store media: %v", entry.Path, err))
		s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusError)
		return
	}
	if !created {
		run.log.Debug("media object already stored", "path", entry.Path)
	}
	run.report.FilesParsed++
	s.recordArtifact(ctx, run, entry.Path, rawHash, domain.ArtifactStatusParsed)
}

func (s *ingestionService) recordArtifact(ctx context.Context, run *batchRun, path, rawHash, status string) {
	artifact := &domain.SourceArtifact{
		ID:       uuid.New(),
		BatchID:  run.batchID,
		FilePath: path,
		RawHash:  rawHash,
		Status:   status,
	}
	if err := s.artifacts.Create(ctx, nil, artifact); err != nil {
		run.report.LogError(fmt.Sprintf("%s: record artifact: %v", path, err))
	}
}

func (r *batchRun) append(msg *domain.Message) {
	if r.buffered == nil {
		r.buffered = make(map[string]bool)
	}
	if r.buffered[msg.ContentHash] {
		r.report.DuplicatesSkipped++
		return
	}
	r.buffered[msg.ContentHash] = true
	r.buffer = append(r.buffer, msg)
}

// flush is the only write barrier for messages: everything in the buffer is
// deduped against the store and inserted in one transaction.
func (r *batchRun) flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}
	buffer := r.buffer
	r.buffer = nil
	r.buffered = nil

	hashes := make([]string, 0, len(buffer))
	for _, m := range buffer {
		hashes = append(hashes, m.ContentHash)
	}
	existing, err := r.svc.messages.FilterExistingHashes(ctx, nil, hashes)
	if err != nil {
		return fmt.Errorf("filter existing hashes: %w", err)
	}

	toInsert := make([]*domain.Message, 0, len(buffer))
	for _, m := range buffer {
		if existing[m.ContentHash] {
			r.report.DuplicatesSkipped++
			continue
		}
		toInsert = append(toInsert, m)
	}
	if len(toInsert) == 0 {
		return nil
	}
	if err := r.svc.messages.CreateBatch(ctx, nil, toInsert); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	r.report.MessagesCreated += len(toInsert)
	r.svc.pushSimilarity(toInsert)
	return nil
}

// pushSimilarity mirrors freshly inserted messages to the similarity index.
// Failures are logged and dropped; the index catches up on its next rebuild.
func (s *ingestionService) pushSimilarity(msgs []*domain.Message) {
	if !s.similarity.Enabled() || len(msgs) == 0 {
		return
	}
	docs := make([]similarity.Document, 0, len(msgs))
	for _, m := range msgs {
		var tags []string
		if len(m.Tags) > 0 {
			_ = json.Unmarshal(m.Tags, &tags)
		}
		docs = append(docs, similarity.Document{
			MessageID: m.ID.String(),
			ThreadID:  m.ThreadID.String(),
			Sender:    m.SenderName,
			Timestamp: m.TimestampUTC,
			Text:      m.ContentText,
			Tags:      tags,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), similarityPushTimeout)
	defer cancel()
	if err := s.similarity.Push(ctx, docs); err != nil {
		s.log.Warn("similarity push failed", "count", len(docs), "error", err)
	}
}

func (s *ingestionService) checkpointProgress(ctx context.Context, batchID uuid.UUID, pct float64, update ProgressFunc, processed, total int) {
	if err := s.batches.UpdateIngestionJob(ctx, nil, batchID, map[string]interface{}{
		"progress": pct,
	}); err != nil {
		s.log.Warn("failed to checkpoint batch progress", "batch_id", batchID, "error", err)
	}
	if update != nil {
		update(pct, fmt.Sprintf("processed %d of %d files", processed, total))
	}
}

func (s *ingestionService) completeBatch(ctx context.Context, batchID uuid.UUID, report *domain.IngestionReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := s.batches.UpdateFields(ctx, nil, batchID, map[string]interface{}{
		"status":       domain.BatchStatusCompleted,
		"report":       datatypes.JSON(reportJSON),
		"completed_at": time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if err := s.batches.UpdateIngestionJob(ctx, nil, batchID, map[string]interface{}{
		"status":   domain.JobStatusCompleted,
		"progress": 100.0,
	}); err != nil {
		s.log.Warn("failed to finalize ingestion job row", "batch_id", batchID, "error", err)
	}
	return nil
}

func (s *ingestionService) failBatch(ctx context.Context, batchID uuid.UUID, report *domain.IngestionReport, cause error) {
	report.LogError(cause.Error())
	report.Finish(domain.BatchStatusFailed)
	reportJSON, err := json.Marshal(report)
	if err != nil {
		s.log.Error("failed to marshal failure report", "batch_id", batchID, "error", err)
		reportJSON = []byte(`{}`)
	}
	if err := s.batches.UpdateFields(ctx, nil, batchID, map[string]interface{}{
		"status":       domain.BatchStatusFailed,
		"report":       datatypes.JSON(reportJSON),
		"completed_at": time.Now().UTC(),
	}); err != nil {
		s.log.Error("failed to mark batch failed", "batch_id", batchID, "error", err)
	}
	if err := s.batches.UpdateIngestionJob(ctx, nil, batchID, map[string]interface{}{
		"status":    domain.JobStatusFailed,
		"error_msg": cause.Error(),
	}); err != nil {
		s.log.Warn("failed to mark ingestion job failed", "batch_id", batchID, "error", err)
	}
}

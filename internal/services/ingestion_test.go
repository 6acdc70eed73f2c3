package services_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/mediastore"
	"github.com/yungbote/memoirvault-backend/internal/platform/similarity"
	"github.com/yungbote/memoirvault-backend/internal/repos"
	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

const conversationHTML = `<html>
<head><title>Participants: Alice Smith</title></head>
<body>
<section class="_a6-g">
  <h2>Alice Smith</h2>
  <div class="_a6-p">flight lands at noon</div>
  <div class="_a72d">Jan 02, 2020 3:04:05 PM</div>
</section>
<section class="_a6-g">
  <h2>Bob Jones</h2>
  <div class="_a6-p">see you there</div>
  <div class="_a72d">Jan 02, 2020 3:05:00 PM</div>
</section>
<section class="_a6-g">
  <h2>Bob Jones</h2>
  <div class="_a6-p">broken clock message</div>
  <div class="_a72d">not a timestamp</div>
</section>
</body>
</html>`

type ingestionEnv struct {
	db       *gorm.DB
	svc      services.IngestionService
	dlq      services.DeadLetterService
	messages repos.MessageRepo
	threads  repos.ThreadRepo
	mediaDir string
}

func newIngestionEnv(t *testing.T) *ingestionEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	mediaDir := filepath.Join(t.TempDir(), "media")
	media, err := mediastore.NewLocal(mediaDir, log)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	dlq, err := services.NewDeadLetterService(log, t.TempDir())
	if err != nil {
		t.Fatalf("dead letter service: %v", err)
	}

	threads := repos.NewThreadRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	svc := services.NewIngestionService(
		db, log,
		repos.NewBatchRepo(db, log),
		repos.NewArtifactRepo(db, log),
		threads,
		messages,
		media,
		similarity.NewPusher(log),
		dlq,
	)
	return &ingestionEnv{db: db, svc: svc, dlq: dlq, messages: messages, threads: threads, mediaDir: mediaDir}
}

func writeArchive(t *testing.T, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	w := zip.NewWriter(f)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := fw.Write(body); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
	return path
}

func (e *ingestionEnv) run(t *testing.T, archivePath string) (*domain.ImportBatch, *domain.IngestionReport, error) {
	t.Helper()
	batch, err := e.svc.CreateBatch(context.Background(), domain.SourceTypeGenericZip, filepath.Base(archivePath))
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	payload, _ := json.Marshal(domain.IngestionPayload{BatchID: batch.ID, Path: archivePath})
	job := &domain.Job{
		ID:        uuid.New(),
		JobType:   domain.JobTypeIngestion,
		Status:    domain.JobStatusRunning,
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}
	_, runErr := e.svc.HandleJob(context.Background(), job, nil)

	got, _, err := e.svc.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	var report domain.IngestionReport
	if len(got.Report) > 0 {
		if err := json.Unmarshal(got.Report, &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
	}
	return got, &report, runErr
}

func TestIngestionHappyPath(t *testing.T) {
	env := newIngestionEnv(t)
	archive := writeArchive(t, map[string][]byte{
		"messages/inbox/alice/message_1.html": []byte(conversationHTML),
		"messages/inbox/alice/photos/a.jpg":   []byte("jpegbytes"),
		"about_you/profile.txt":               []byte("ignored"),
	})

	batch, report, err := env.run(t, archive)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Status != domain.BatchStatusCompleted {
		t.Fatalf("batch status = %s, want completed", batch.Status)
	}
	if report.FilesFound != 3 {
		t.Fatalf("files_found = %d, want 3", report.FilesFound)
	}
	if report.FilesParsed != 2 {
		t.Fatalf("files_parsed = %d, want 2 (conversation + media)", report.FilesParsed)
	}
	if report.MessagesFound != 3 {
		t.Fatalf("messages_found = %d, want 3", report.MessagesFound)
	}
	if report.MessagesCreated != 2 {
		t.Fatalf("messages_created = %d, want 2", report.MessagesCreated)
	}
	if report.Errors != 1 {
		t.Fatalf("errors = %d, want 1 (unparseable timestamp)", report.Errors)
	}

	// The invalid message landed in the dead letter sink with its raw text.
	letters, err := env.dlq.ReadRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("read dead letters: %v", err)
	}
	if len(letters) != 1 || letters[0].RawContent != "broken clock message" {
		t.Fatalf("unexpected dead letters: %+v", letters)
	}

	// Media was stored content-addressed.
	entries, err := os.ReadDir(env.mediaDir)
	if err != nil {
		t.Fatalf("read media dir: %v", err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".jpg" {
		t.Fatalf("unexpected media dir contents: %v", entries)
	}

	// Every entry left an artifact row with its outcome status.
	var artifacts []*domain.SourceArtifact
	if err := env.db.Where("batch_id = ?", batch.ID).Order("file_path").Find(&artifacts).Error; err != nil {
		t.Fatalf("load artifacts: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("artifact rows = %d, want 3", len(artifacts))
	}
	wantStatus := map[string]string{
		"about_you/profile.txt":               domain.ArtifactStatusSkipped,
		"messages/inbox/alice/message_1.html": domain.ArtifactStatusParsed,
		"messages/inbox/alice/photos/a.jpg":   domain.ArtifactStatusParsed,
	}
	for _, a := range artifacts {
		if a.Status != wantStatus[a.FilePath] {
			t.Fatalf("artifact %s status = %s, want %s", a.FilePath, a.Status, wantStatus[a.FilePath])
		}
	}

	// Messages are queryable through the thread.
	thread, err := env.threads.GetOrCreateByTitle(context.Background(), nil, "Alice Smith")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	msgs, err := env.messages.ListByThread(context.Background(), nil, thread.ID, 0, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("thread has %d messages, want 2", len(msgs))
	}
	var tags []string
	if err := json.Unmarshal(msgs[0].Tags, &tags); err != nil || len(tags) != 1 || tags[0] != "travel" {
		t.Fatalf("first message tags = %s, want [travel]", msgs[0].Tags)
	}
}

func TestIngestionReingestSameArchiveIsIdempotent(t *testing.T) {
	env := newIngestionEnv(t)
	archive := writeArchive(t, map[string][]byte{
		"messages/inbox/alice/message_1.html": []byte(conversationHTML),
	})

	if _, report, err := env.run(t, archive); err != nil || report.MessagesCreated != 2 {
		t.Fatalf("first run: err=%v created=%d", err, report.MessagesCreated)
	}

	batch, report, err := env.run(t, archive)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if batch.Status != domain.BatchStatusCompleted {
		t.Fatalf("batch status = %s, want completed", batch.Status)
	}
	// Whole-file dedup skips the file before parsing.
	if report.FilesParsed != 0 || report.MessagesCreated != 0 {
		t.Fatalf("re-ingest parsed=%d created=%d, want 0/0", report.FilesParsed, report.MessagesCreated)
	}
	count, err := env.messages.CountAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("message count after re-ingest = %d, want 2", count)
	}
}

func TestIngestionMessageLevelDedup(t *testing.T) {
	env := newIngestionEnv(t)
	first := writeArchive(t, map[string][]byte{
		"messages/inbox/alice/message_1.html": []byte(conversationHTML),
	})
	if _, _, err := env.run(t, first); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Same conversation, different bytes: file dedup misses, message dedup
	// must catch every message.
	second := writeArchive(t, map[string][]byte{
		"messages/inbox/alice/message_1.html": []byte(conversationHTML + "\n<!-- re-export -->"),
	})
	_, report, err := env.run(t, second)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.MessagesCreated != 0 {
		t.Fatalf("messages_created = %d, want 0", report.MessagesCreated)
	}
	if report.DuplicatesSkipped != 2 {
		t.Fatalf("duplicates_skipped = %d, want 2", report.DuplicatesSkipped)
	}
}

func TestIngestionCorruptArchiveFailsBatch(t *testing.T) {
	env := newIngestionEnv(t)
	bad := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(bad, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	batch, report, err := env.run(t, bad)
	if err == nil {
		t.Fatal("expected error for corrupt archive")
	}
	if batch.Status != domain.BatchStatusFailed {
		t.Fatalf("batch status = %s, want failed", batch.Status)
	}
	if report.Status != domain.BatchStatusFailed || report.Errors == 0 {
		t.Fatalf("report not finalized on failure: %+v", report)
	}
}

func TestIngestionProgressIsMonotonic(t *testing.T) {
	env := newIngestionEnv(t)
	files := map[string][]byte{
		"messages/inbox/alice/message_1.html": []byte(conversationHTML),
	}
	// Enough filler entries to cross several progress checkpoints.
	for i := 0; i < 25; i++ {
		files[filepath.Join("about_you", "note_"+string(rune('a'+i))+".txt")] = []byte("filler")
	}
	archive := writeArchive(t, files)

	batch, err := env.svc.CreateBatch(context.Background(), domain.SourceTypeGenericZip, "export.zip")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	payload, _ := json.Marshal(domain.IngestionPayload{BatchID: batch.ID, Path: archive})
	job := &domain.Job{
		ID:      uuid.New(),
		JobType: domain.JobTypeIngestion,
		Payload: datatypes.JSON(payload),
	}

	var seen []float64
	if _, err := env.svc.HandleJob(context.Background(), job, func(progress float64, message string) {
		seen = append(seen, progress)
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(seen) < 2 {
		t.Fatalf("expected multiple progress checkpoints, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
	if seen[len(seen)-1] != 100 {
		t.Fatalf("final progress = %v, want 100", seen[len(seen)-1])
	}
}

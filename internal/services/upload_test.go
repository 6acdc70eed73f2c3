package services_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

func TestUploadSaveWhole(t *testing.T) {
	dir := t.TempDir()
	svc, err := services.NewUploadService(testutil.Logger(t), dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	path, err := svc.SaveWhole(context.Background(), "../../etc/export.zip", strings.NewReader("zipbytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("upload escaped the upload dir: %s", path)
	}
	if !strings.HasSuffix(path, "_export.zip") {
		t.Fatalf("unexpected file name: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "zipbytes" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestUploadChunkedAssembly(t *testing.T) {
	dir := t.TempDir()
	svc, err := services.NewUploadService(testutil.Logger(t), dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	// Chunks arrive out of order; assembly is by index.
	if err := svc.SaveChunk(ctx, "upload-1", 2, strings.NewReader("cc")); err != nil {
		t.Fatalf("chunk 2: %v", err)
	}
	if err := svc.SaveChunk(ctx, "upload-1", 0, strings.NewReader("aa")); err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	if err := svc.SaveChunk(ctx, "upload-1", 1, strings.NewReader("bb")); err != nil {
		t.Fatalf("chunk 1: %v", err)
	}

	path, err := svc.Complete(ctx, "upload-1", "export.zip")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read assembled: %v", err)
	}
	if string(data) != "aabbcc" {
		t.Fatalf("assembled = %q, want aabbcc", data)
	}

	// Parts are removed after assembly.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".part") {
			t.Fatalf("leftover chunk: %s", e.Name())
		}
	}
}

func TestUploadCompleteWithoutChunks(t *testing.T) {
	svc, err := services.NewUploadService(testutil.Logger(t), t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := svc.Complete(context.Background(), "missing", "export.zip"); err == nil {
		t.Fatal("expected error when no chunks exist")
	}
}

func TestUploadChunkValidation(t *testing.T) {
	svc, err := services.NewUploadService(testutil.Logger(t), t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := svc.SaveChunk(context.Background(), "", 0, strings.NewReader("x")); err == nil {
		t.Fatal("expected error for missing upload_id")
	}
	if err := svc.SaveChunk(context.Background(), "upload-1", -1, strings.NewReader("x")); err == nil {
		t.Fatal("expected error for negative index")
	}
}

package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/utils"
)

const maxErrorBodyBytes = 1024

// Document is one message pushed to the similarity index.
type Document struct {
	MessageID string   `json:"message_id"`
	ThreadID  string   `json:"thread_id"`
	Sender    string   `json:"sender"`
	Timestamp float64  `json:"timestamp"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags,omitempty"`
}

// Pusher forwards newly ingested messages to the similarity service. Pushes
// are best-effort: callers log failures and keep going, the index is rebuilt
// from the store on demand.
type Pusher interface {
	Push(ctx context.Context, docs []Document) error
	Enabled() bool
}

type pusher struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

// NewPusher reads SIMILARITY_SERVICE_URL; an empty value disables pushing
// without disabling ingestion.
func NewPusher(log *logger.Logger) Pusher {
	baseURL := strings.TrimRight(utils.GetEnv("SIMILARITY_SERVICE_URL", "", log), "/")
	return &pusher{
		log:     log.With("service", "SimilarityPusher"),
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (p *pusher) Enabled() bool { return p.baseURL != "" }

func (p *pusher) Push(ctx context.Context, docs []Document) error {
	if !p.Enabled() || len(docs) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{"documents": docs})
	if err != nil {
		return fmt.Errorf("marshal similarity batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/index/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build similarity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("push similarity batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("similarity service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

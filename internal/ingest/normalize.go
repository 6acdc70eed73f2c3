package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampSentinel marks a raw timestamp that matched none of the known
// layouts. It deliberately fails validation later; an unparseable timestamp
// must never be coerced to "now".
const TimestampSentinel = 0.0

// Plausibility bounds for message timestamps: early 2004 through year 3000.
const (
	minValidTimestamp = 1075852800
	maxValidTimestamp = 32503680000
)

// Known export timestamp layouts, tried in order. First parse wins.
var timestampLayouts = []string{
	"Jan 02, 2006 3:04:05 PM",
	"Jan 02, 2006, 3:04 PM",
	"2006-01-02 15:04:05",
	"Monday, January 2, 2006 at 3:04 PM",
}

// ParseTimestamp converts a raw export timestamp string to seconds since the
// epoch, or TimestampSentinel when no known layout matches.
func ParseTimestamp(raw string) float64 {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return TimestampSentinel
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, clean, time.UTC); err == nil {
			return float64(t.Unix())
		}
	}
	return TimestampSentinel
}

// NormalizedMessage is a message after extraction from a raw export record but
// before insertion. Building one does no I/O; Validate decides whether it may
// enter the store.
type NormalizedMessage struct {
	Sender      string
	Content     string
	Timestamp   float64
	ThreadTitle string
	SourceFile  string
	Platform    string
	Tags        []string
}

func (m *NormalizedMessage) Validate() error {
	if strings.TrimSpace(m.Sender) == "" {
		return fmt.Errorf("sender must be non-empty")
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("content must be non-empty")
	}
	if strings.TrimSpace(m.ThreadTitle) == "" {
		return fmt.Errorf("thread title must be non-empty")
	}
	if m.Timestamp == TimestampSentinel {
		return fmt.Errorf("timestamp cannot be 0")
	}
	if m.Timestamp < minValidTimestamp || m.Timestamp > maxValidTimestamp {
		return fmt.Errorf("timestamp %v outside plausible range", m.Timestamp)
	}
	return nil
}

// ContentHash is the message-level dedup key, covering sender, timestamp and
// text with an explicit delimiter.
func ContentHash(sender string, timestamp float64, text string) string {
	sig := sender + "|" + strconv.FormatFloat(timestamp, 'f', -1, 64) + "|" + text
	sum := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(sum[:])
}

// FileHash is the whole-file dedup key.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

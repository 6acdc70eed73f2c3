package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// RawMessage is one message block as it appears in an export, before
// normalization.
type RawMessage struct {
	Sender       string
	Text         string
	RawTimestamp string
}

// RawThread is one parsed conversation file.
type RawThread struct {
	Title    string
	Messages []RawMessage
}

var mediaExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".mp4":  true,
	".mov":  true,
	".webp": true,
}

// IsConversationHTML reports whether an archive entry path looks like an HTML
// conversation export.
func IsConversationHTML(path string) bool {
	p := strings.ToLower(filepath.ToSlash(path))
	return strings.HasSuffix(p, ".html") && strings.Contains(p, "messages/inbox")
}

// IsConversationJSON reports whether an archive entry path looks like a JSON
// conversation export.
func IsConversationJSON(path string) bool {
	p := strings.ToLower(filepath.ToSlash(path))
	return strings.HasSuffix(p, ".json") && strings.Contains(p, "messages/inbox")
}

// IsMediaFile reports whether an archive entry path carries a recognized
// media extension.
func IsMediaFile(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// ParseHTMLThread extracts a conversation from an HTML export file. Blocks
// with no text content (media-only or reaction stubs) are skipped. Newer and
// older export markups are both handled; the newer class names win when both
// are present.
func ParseHTMLThread(data []byte) (*RawThread, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	thread := &RawThread{Title: htmlTitle(doc)}
	thread.Title = strings.TrimSpace(strings.TrimPrefix(thread.Title, "Participants: "))

	blocks := findAll(doc, "section", "_a6-g")
	if len(blocks) == 0 {
		blocks = findAll(doc, "div", "pam")
	}
	for _, block := range blocks {
		sender := textOfFirst(block, "h2", "")
		if sender == "" {
			sender = textOfFirst(block, "div", "_3-96")
		}
		text := textOfFirst(block, "div", "_a6-p")
		if text == "" {
			text = textOfFirst(block, "div", "_3-95")
		}
		ts := textOfFirst(block, "div", "_a72d")
		if ts == "" {
			ts = textOfFirst(block, "div", "_3-94")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		thread.Messages = append(thread.Messages, RawMessage{
			Sender:       strings.TrimSpace(sender),
			Text:         strings.TrimSpace(text),
			RawTimestamp: strings.TrimSpace(ts),
		})
	}
	return thread, nil
}

type jsonExport struct {
	Title    string `json:"title"`
	Messages []struct {
		SenderName  string `json:"sender_name"`
		TimestampMS int64  `json:"timestamp_ms"`
		Content     string `json:"content"`
	} `json:"messages"`
}

// ParseJSONThread extracts a conversation from a JSON export file. The JSON
// layout carries millisecond epochs directly, so RawTimestamp is rendered in
// a layout ParseTimestamp already understands.
func ParseJSONThread(data []byte) (*RawThread, error) {
	var export jsonExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse json export: %w", err)
	}
	if export.Title == "" && len(export.Messages) == 0 {
		return nil, fmt.Errorf("json export has no title or messages")
	}
	thread := &RawThread{Title: strings.TrimSpace(export.Title)}
	for _, m := range export.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		raw := ""
		if m.TimestampMS > 0 {
			raw = epochMillisToLayout(m.TimestampMS)
		}
		thread.Messages = append(thread.Messages, RawMessage{
			Sender:       strings.TrimSpace(m.SenderName),
			Text:         strings.TrimSpace(m.Content),
			RawTimestamp: raw,
		})
	}
	return thread, nil
}

func epochMillisToLayout(ms int64) string {
	return time.Unix(ms/1000, 0).UTC().Format("2006-01-02 15:04:05")
}

func htmlTitle(doc *html.Node) string {
	if n := findFirst(doc, "title", ""); n != nil {
		return strings.TrimSpace(nodeText(n))
	}
	return ""
}

func findFirst(n *html.Node, tag, class string) *html.Node {
	if matchNode(n, tag, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	if matchNode(n, tag, class) {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAll(c, tag, class)...)
	}
	return out
}

func matchNode(n *html.Node, tag, class string) bool {
	if n.Type != html.ElementNode || n.Data != tag {
		return false
	}
	if class == "" {
		return true
	}
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textOfFirst(n *html.Node, tag, class string) string {
	found := findFirst(n, tag, class)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(found))
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

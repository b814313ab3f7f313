// Package actions writes action records: markdown files that ask a human or
// agent to follow up on an incoming message.
package actions

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fte-hq/fte-connectors/internal/metrics"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

const (
	isoLayout     = "2006-01-02T15:04:05.000Z07:00"
	filePrefix    = "WHATSAPP_"
	fileExt       = ".md"
	notifyTimeout = 2 * time.Second
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Notifier announces a written record to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, rec Record) error
}

// Record is a persisted action file.
type Record struct {
	Path      string    `json:"path"`
	From      string    `json:"from"`
	Chat      string    `json:"chat"`
	Timestamp time.Time `json:"timestamp"`
	Created   time.Time `json:"created"`
}

// Sink writes one record per qualifying message into Dir.
type Sink struct {
	dir      string
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
}

// NewSink creates a sink rooted at dir. notifier may be nil.
func NewSink(dir string, notifier Notifier, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.New(os.Stderr, "[ACTIONS] ", log.LstdFlags)
	}
	return &Sink{dir: dir, notifier: notifier, logger: logger, now: time.Now}
}

// Dir returns the target directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Write persists msg and returns the record.
func (s *Sink) Write(msg whatsapp.IncomingMessage) (Record, error) {
	created := s.now().UTC()
	rec := Record{
		Path:      filepath.Join(s.dir, FileName(created, msg.From)),
		From:      msg.From,
		Chat:      msg.ChatName,
		Timestamp: msg.Timestamp.UTC(),
		Created:   created,
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("failed to create action directory: %w", err)
	}
	if err := os.WriteFile(rec.Path, []byte(Render(msg, created)), 0o644); err != nil {
		return Record{}, fmt.Errorf("failed to write action file: %w", err)
	}
	return rec, nil
}

// Handle is the monitor callback. Failures are logged and swallowed.
func (s *Sink) Handle(msg whatsapp.IncomingMessage) {
	rec, err := s.Write(msg)
	if err != nil {
		metrics.ActionRecordsWritten.WithLabelValues("error").Inc()
		s.logger.Printf("Failed to save message from %s: %v", msg.From, err)
		return
	}
	metrics.ActionRecordsWritten.WithLabelValues("ok").Inc()
	s.logger.Printf("Saved %s", filepath.Base(rec.Path))

	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, rec); err != nil {
		s.logger.Printf("Failed to announce %s: %v", filepath.Base(rec.Path), err)
	}
}

// Pending counts the action files waiting in the directory. A missing
// directory counts as empty.
func (s *Sink) Pending() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read action directory: %w", err)
	}

	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), fileExt) {
			n++
		}
	}
	return n, nil
}

// FileName builds WHATSAPP_<created>_<sender>.md with ':' and '.' in the
// timestamp and every non-alphanumeric sender character replaced.
func FileName(created time.Time, from string) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(created.UTC().Format(isoLayout))
	return filePrefix + ts + "_" + nonAlnum.ReplaceAllString(from, "_") + fileExt
}

// Render produces the record's markdown body.
func Render(msg whatsapp.IncomingMessage, created time.Time) string {
	ts := msg.Timestamp.UTC().Format(isoLayout)

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("type: whatsapp_message\n")
	fmt.Fprintf(&b, "from: %s\n", msg.From)
	fmt.Fprintf(&b, "chat: %s\n", msg.ChatName)
	fmt.Fprintf(&b, "timestamp: %s\n", ts)
	b.WriteString("status: needs_action\n")
	fmt.Fprintf(&b, "created: %s\n", created.UTC().Format(isoLayout))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# WhatsApp Message from %s\n\n", msg.From)
	fmt.Fprintf(&b, "## Chat\n%s\n\n", msg.ChatName)
	fmt.Fprintf(&b, "## Timestamp\n%s\n\n", ts)
	fmt.Fprintf(&b, "## Message\n%s\n\n", msg.Body)
	b.WriteString("---\n")
	b.WriteString("**Action Required:** Review and draft response\n")
	return b.String()
}

// Package session records chat transcripts durably: a JSONL message
// stream, a human-readable markdown transcript, and session metadata.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/askfs/askfs/internal/errors"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Info is the session.json metadata record.
type Info struct {
	Name        string    `json:"name"`
	Root        string    `json:"root"`
	StartedAt   time.Time `json:"started_at"`
	Transcript  string    `json:"transcript_md"`
	Messages    string    `json:"messages_jsonl"`
	Meta        string    `json:"meta_json"`
	K           int       `json:"k"`
	ShowSources bool      `json:"show_sources"`
}

// Message is one messages.jsonl record.
type Message struct {
	Timestamp time.Time `json:"ts"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
}

// Recorder writes one session's files under
// <indexdir>/sessions/<timestamp>_<slug>/.
type Recorder struct {
	dir            string
	messagesPath   string
	transcriptPath string
	metaPath       string
	info           Info
	logger         *slog.Logger
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify reduces s to a filesystem-safe lowercase slug.
func Slugify(s string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "session"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}

// NewRecorder creates the session directory and writes the initial
// metadata and transcript header.
func NewRecorder(indexDir, name, root, slug string, k int, showSources bool, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	dir := filepath.Join(indexDir, "sessions",
		fmt.Sprintf("%s_%s", now.Format("20060102-150405"), Slugify(slug)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeFileWrite, "failed to create session directory", err)
	}

	r := &Recorder{
		dir:            dir,
		messagesPath:   filepath.Join(dir, "messages.jsonl"),
		transcriptPath: filepath.Join(dir, "transcript.md"),
		metaPath:       filepath.Join(dir, "session.json"),
		logger:         logger,
	}
	r.info = Info{
		Name:        name,
		Root:        root,
		StartedAt:   now,
		Transcript:  r.transcriptPath,
		Messages:    r.messagesPath,
		Meta:        r.metaPath,
		K:           k,
		ShowSources: showSources,
	}

	if err := r.writeMeta(); err != nil {
		return nil, err
	}

	header := fmt.Sprintf("# askfs session — %s\n\n- Started: %s\n- k (top windows): %d\n- show_sources: %t\n\n---\n\n",
		name, now.Format("2006-01-02 15:04:05"), k, showSources)
	if err := os.WriteFile(r.transcriptPath, []byte(header), 0o644); err != nil {
		return nil, errors.New(errors.ErrCodeFileWrite, "failed to write transcript header", err)
	}

	logger.Info("session_started",
		slog.String("name", name),
		slog.String("dir", dir))
	return r, nil
}

// Dir returns the session directory.
func (r *Recorder) Dir() string { return r.dir }

// Info returns a copy of the current session metadata.
func (r *Recorder) Info() Info { return r.info }

// Append records one message in both the JSONL stream and the transcript.
// Citations, when present, are listed under a Sources block.
func (r *Recorder) Append(role, content string, sources []string) error {
	msg := Message{Timestamp: time.Now(), Role: role, Content: content, Sources: sources}
	line, err := json.Marshal(msg)
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to marshal message", err)
	}
	if err := appendLine(r.messagesPath, string(line)); err != nil {
		return err
	}

	var sb strings.Builder
	switch role {
	case RoleUser:
		sb.WriteString("**You:** ")
	case RoleAssistant:
		sb.WriteString("**askfs:** ")
	default:
		fmt.Fprintf(&sb, "**%s:** ", capitalize(role))
	}
	sb.WriteString(content)
	sb.WriteString("\n")
	if len(sources) > 0 {
		sb.WriteString("\n_Sources:_\n")
		for _, s := range sources {
			fmt.Fprintf(&sb, "- `%s`\n", s)
		}
	}
	sb.WriteString("\n")
	return appendLine(r.transcriptPath, sb.String())
}

// SetK updates the session's k and rewrites the metadata.
func (r *Recorder) SetK(k int) error {
	r.info.K = k
	return r.writeMeta()
}

// SetShowSources updates the source display flag and rewrites metadata.
func (r *Recorder) SetShowSources(show bool) error {
	r.info.ShowSources = show
	return r.writeMeta()
}

// writeMeta atomically replaces session.json.
func (r *Recorder) writeMeta() error {
	data, err := json.MarshalIndent(r.info, "", "  ")
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to marshal session metadata", err)
	}
	tmp := r.metaPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeFileWrite, "failed to write session metadata", err)
	}
	if err := os.Rename(tmp, r.metaPath); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.ErrCodeFileWrite, "failed to replace session metadata", err)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New(errors.ErrCodeFileWrite, "failed to open session file", err)
	}
	defer func() { _ = f.Close() }()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := f.WriteString(line); err != nil {
		return errors.New(errors.ErrCodeFileWrite, "failed to append to session file", err)
	}
	return nil
}

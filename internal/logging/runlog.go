package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLog is a scoped per-stage log destination. The orchestrator opens one
// before a stage runs, fans stage output into it alongside the console, and
// closes it on every exit path so handles never outlive the stage.
type RunLog struct {
	path string
	file *os.File
}

// OpenRunLog creates logs/<stage>_<version>_<timestamp>.log under dir.
func OpenRunLog(dir, stage, version string, now time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.log", sanitizeSegment(stage), sanitizeSegment(version), now.UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return &RunLog{path: path, file: file}, nil
}

// Path returns the on-disk location of the run log.
func (r *RunLog) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Writer returns the underlying file writer.
func (r *RunLog) Writer() io.Writer {
	if r == nil || r.file == nil {
		return io.Discard
	}
	return r.file
}

// Tee returns a writer duplicating output to the run log and the provided
// console writer.
func (r *RunLog) Tee(console io.Writer) io.Writer {
	if console == nil {
		return r.Writer()
	}
	if r == nil || r.file == nil {
		return console
	}
	return io.MultiWriter(console, r.file)
}

// Close releases the run log file handle. Safe to call on a nil receiver.
func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func sanitizeSegment(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return replacer.Replace(trimmed)
}

package data

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/contactdesk/score-api/internal/core"
)

// ScoreLogMarker is the fixed marker every processed-score log line carries.
// Readers ignore lines without it, so foreign log lines are harmless.
const ScoreLogMarker = "Contact score processed"

// FileScoreLog is an append-only, line-oriented score log backed by a single
// file. Each line is "[<timestamp>] score.INFO: <marker> <JSON payload>".
//
// Appends are serialized by a mutex and written with O_APPEND in one write
// call, which keeps concurrent appends from interleaving. The ordering
// between concurrent appends is whatever the file system provides.
type FileScoreLog struct {
	path         string
	timeProvider TimeProvider

	mu sync.Mutex
}

var _ core.ScoreLog = (*FileScoreLog)(nil)

// FileScoreLogOptions configures a FileScoreLog.
type FileScoreLogOptions struct {
	// Path is the location of the log file. Parent directories are created on
	// first append.
	Path string
	// TimeProvider overrides the clock used for line timestamps (tests).
	TimeProvider TimeProvider
}

// NewFileScoreLog creates a file-backed score log.
func NewFileScoreLog(opts FileScoreLogOptions) (*FileScoreLog, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("score log path is required")
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &FileScoreLog{path: opts.Path, timeProvider: tp}, nil
}

// Path returns the location of the underlying log file.
func (l *FileScoreLog) Path() string {
	return l.path
}

// Append writes one structured record to the log.
func (l *FileScoreLog) Append(ctx context.Context, rec core.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}

	ts := l.timeProvider.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[%s] score.INFO: %s %s\n", ts, ScoreLogMarker, payload)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open score log: %w", err)
	}

	_, writeErr := f.WriteString(line)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("append score log: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close score log: %w", closeErr)
	}
	return nil
}

// ReadAll returns the raw log lines in append order. A missing file yields
// core.ErrLogNotFound, which callers must distinguish from an empty log.
func (l *FileScoreLog) ReadAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrLogNotFound
		}
		return nil, fmt.Errorf("open score log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var lines []string
	scanner := bufio.NewScanner(f)
	// Generous limit; a single log line is small but names/emails are unbounded.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("read score log: %w", scanErr)
	}
	return lines, nil
}

// Package jsonl implements the append-only, line-delimited JSON logs shared by
// the audit and escalation components. Many processes may append to the same
// file, so each record is marshaled up front and written with a single
// O_APPEND write while holding the file's sidecar lock.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gavel/internal/fileutil"
)

const defaultScannerMaxBytes = 4 * 1024 * 1024

// Appender appends records to one log file.
type Appender struct {
	mu   sync.Mutex
	path string
}

// NewAppender returns an appender for path. The file is created on first use.
func NewAppender(path string) *Appender {
	return &Appender{path: strings.TrimSpace(path)}
}

// Path reports the log file location.
func (a *Appender) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Append writes record as one line.
func (a *Appender) Append(ctx context.Context, record any) error {
	if a == nil || a.path == "" {
		return errors.New("jsonl: appender has no path")
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("jsonl: marshal record: %w", err)
	}
	if len(line) == 0 || line[0] != '{' {
		return fmt.Errorf("jsonl: record must encode as a JSON object")
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	return fileutil.WithLock(ctx, a.path, func() error {
		if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
			return fmt.Errorf("jsonl: create log directory: %w", err)
		}
		f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("jsonl: open %s: %w", a.path, err)
		}
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			return fmt.Errorf("jsonl: write %s: %w", a.path, err)
		}
		return f.Close()
	})
}

// Reader decodes records one line at a time.
type Reader[T any] struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r.
func NewReader[T any](r io.Reader) *Reader[T] {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), defaultScannerMaxBytes)
	return &Reader[T]{scanner: scanner}
}

// Next returns the next record, or io.EOF. Blank lines are skipped.
func (r *Reader[T]) Next() (T, error) {
	var zero T
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return zero, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return zero, err
	}
	return zero, io.EOF
}

// ReadFile loads every record in path. A missing file is an empty log.
func ReadFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	defer f.Close()

	reader := NewReader[T](f)
	var out []T
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("jsonl: %s: %w", path, err)
		}
		out = append(out, rec)
	}
}

package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"gavel/internal/config"
)

// Log names accepted by PathFor.
const (
	Audit       = "audit"
	Escalations = "escalations"
	Application = "app"
)

// Names lists the logs in display order.
func Names() []string {
	return []string{Audit, Escalations, Application}
}

// PathFor resolves a log name to its file under the configured log directory.
func PathFor(cfg *config.Config, name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Audit, "":
		return cfg.AuditLogPath(), nil
	case Escalations, "escalation":
		return cfg.EscalationLogPath(), nil
	case Application, "application":
		return cfg.ApplicationLogPath(), nil
	default:
		return "", fmt.Errorf("unknown log %q (expected one of %s)", name, strings.Join(Names(), ", "))
	}
}

const maxLine = 1024 * 1024

// Tail returns up to limit trailing lines of path and the end offset. A
// missing file yields no lines at offset 0. limit <= 0 returns only the
// offset.
func Tail(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	next := 0
	offset, err := scanLines(file, func(line string) {
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	lines := append(ring[next:len(ring):len(ring)], ring[:next]...)
	return lines, offset, nil
}

// ReadFrom returns the complete lines written at or after offset and the
// offset after the last of them. A file shorter than offset has been
// truncated or replaced and is read from the start.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scanLines(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return nil, 0, err
	}
	return lines, offset + read, nil
}

// scanLines calls fn for each newline-terminated line and returns the number
// of bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			if len(line) > maxLine {
				return consumed, fmt.Errorf("log line exceeds %d bytes", maxLine)
			}
			consumed += int64(len(line))
			fn(strings.TrimRight(line, "\r\n"))
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

// Follow calls onLines with every batch of lines appended to path after
// offset. It watches the parent directory so a log that is created or rotated
// while following is picked up. It returns nil when ctx ends.
func Follow(ctx context.Context, path string, offset int64, onLines func([]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	drain := func() error {
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		offset = next
		if len(lines) > 0 {
			onLines(lines)
		}
		return nil
	}
	// Lines written between the caller's Tail and the watch are not lost.
	if err := drain(); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				offset = 0
				continue
			}
			if err := drain(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("follow %s: %w", path, err)
		}
	}
}

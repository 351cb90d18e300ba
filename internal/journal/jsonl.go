package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/launchwatch/engine/internal/store"
)

// JSONL appends events as newline-delimited JSON to a file.
//
// It is safe for concurrent use.
type JSONL struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// NewJSONL returns a writer that appends to path. If path is blank, it
// returns nil, which is a valid writer that discards everything.
func NewJSONL(path string) *JSONL {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &JSONL{path: path}
}

func (j *JSONL) ensureOpenLocked() error {
	if j.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	j.file = f
	j.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Append writes ev as a single JSON object followed by '\n' and flushes it so
// tailers see it immediately.
func (j *JSONL) Append(_ context.Context, ev store.Event) error {
	if j == nil {
		return nil
	}

	b, err := json.Marshal(newRecord(ev))
	if err != nil {
		return fmt.Errorf("jsonl: marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensureOpenLocked(); err != nil {
		return fmt.Errorf("jsonl: open %s: %w", j.path, err)
	}

	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

// Close flushes any buffered data and closes the underlying file.
func (j *JSONL) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	if j.w != nil {
		if err := j.w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.w = nil
	j.file = nil

	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}

// Package file stores audit entries as JSON lines in a local file.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	audit "folio/pkg/platform/audit"
)

const maxLineBytes = 1 << 20

// Store appends one JSON object per line. The file is opened per write so
// external rotation (rename + recreate) needs no signal.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit file: %w", err)
	}
	return f.Close()
}

// Tail returns up to n entries, newest first. Lines that do not decode are
// returned as parse_error entries carrying the raw text. A missing file is
// an empty log.
func (s *Store) Tail(_ context.Context, n int) ([]audit.Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}

	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit file: %w", err)
	}

	start := max(len(lines)-n, 0)
	out := make([]audit.Entry, 0, len(lines)-start)
	for i := len(lines) - 1; i >= start; i-- {
		var entry audit.Entry
		if err := json.Unmarshal(lines[i], &entry); err != nil {
			entry = audit.Entry{Action: audit.ActionParseError, Raw: string(lines[i])}
		}
		out = append(out, entry)
	}
	return out, nil
}

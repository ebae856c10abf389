package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"txTracker/internal/model"
)

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string {
	return s.path
}

// PutQuarantine appends a quarantined window.
func (s *JsonlStorage) PutQuarantine(record model.QuarantineRecord) error {
	return s.Append(record)
}

// Append writes each record as one JSON line.
func (s *JsonlStorage) Append(records ...interface{}) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := openJsonl(s.path, os.O_APPEND)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := w.Write(record); err != nil {
			w.file.Close()
			return err
		}
	}
	return w.Close()
}

// JsonlWriter streams records into a JSONL file. Close must be called and its
// error checked: buffered lines only reach the file on flush.
type JsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
	lines  int
}

// CreateJsonl truncates path, creating it and its directory when missing.
func CreateJsonl(path string) (*JsonlWriter, error) {
	return openJsonl(path, os.O_TRUNC)
}

func openJsonl(path string, mode int) (*JsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JsonlWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

// Write encodes record as one line.
func (w *JsonlWriter) Write(record interface{}) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	w.lines++
	return nil
}

// Lines returns the number of records written so far.
func (w *JsonlWriter) Lines() int {
	return w.lines
}

// Close flushes buffered lines and closes the file.
func (w *JsonlWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

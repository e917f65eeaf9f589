// Package infra implements infrastructure concerns (device shell, storage,
// process liveness).
package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

// FileDocumentStore implements domain.DocumentStore as one JSON file.
// Saves are atomic (write to temp, then rename); a missing or corrupt
// file degrades to the zero document instead of propagating a parse
// failure.
type FileDocumentStore struct {
	path   string
	logger *zap.Logger
}

// NewFileDocumentStore creates a document store at the given path.
func NewFileDocumentStore(path string, logger *zap.Logger) *FileDocumentStore {
	return &FileDocumentStore{path: path, logger: logger}
}

// Load unmarshals the document into out. Missing or corrupt files leave
// out untouched.
func (s *FileDocumentStore) Load(out any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("document corrupted, using defaults",
			zap.String("path", s.path),
			zap.Error(err))
		return nil
	}
	return nil
}

// Save atomically rewrites the whole document.
func (s *FileDocumentStore) Save(in any) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Temp file unique per process to avoid clobbering a concurrent writer.
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

// Ensure FileDocumentStore implements domain.DocumentStore.
var _ domain.DocumentStore = (*FileDocumentStore)(nil)

package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DiskStore persists the deployment record to a JSON file.
type DiskStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDiskStore creates a store backed by the file at path. The parent
// directory is created on the first save.
func NewDiskStore(path string, logger *slog.Logger) *DiskStore {
	return &DiskStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *DiskStore) Path() string {
	return s.path
}

// Load reads the record from disk.
func (s *DiskStore) Load() DeploymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to read state file", "path", s.path, "error", err)
		}
		return DeploymentRecord{}
	}

	var rec DeploymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Error("failed to parse state file", "path", s.path, "error", err)
		return DeploymentRecord{}
	}
	return rec
}

// Save writes the record atomically by renaming a temporary file into place.
func (s *DiskStore) Save(rec DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deployment record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".deployment-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Info("state saved", "path", s.path, "status", rec.Status)
	return nil
}

// Clear removes the state file.
func (s *DiskStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	s.logger.Info("state file cleared", "path", s.path)
	return nil
}

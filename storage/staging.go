// Package storage manages the scoped local staging area a migration job
// uses between the download and upload transfer stages.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// StagingDir is a per-job temporary directory holding at most one
// transfer blob at a time. It is created at job start and removed on
// every exit path.
type StagingDir struct {
	path string
}

// NewStagingDir creates a staging directory for the given instance under
// baseDir (or the system temp dir when baseDir is empty).
func NewStagingDir(baseDir, instanceID string) (*StagingDir, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	path := filepath.Join(baseDir, "vm-migrate-"+instanceID)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &StagingDir{path: path}, nil
}

// Path returns the staging directory path.
func (s *StagingDir) Path() string { return s.path }

// BlobPath returns the path the transfer blob is staged at.
func (s *StagingDir) BlobPath() string {
	return filepath.Join(s.path, "disk.raw")
}

// Exists reports whether the staging directory is still present.
func (s *StagingDir) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Remove deletes the staging directory recursively. Removing an already
// absent directory is not an error.
func (s *StagingDir) Remove() error {
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("failed to remove staging dir %s: %w", s.path, err)
	}
	return nil
}

package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vm-migrator/core/models"
)

// FileStore keeps one JSON checkpoint file per instance under a state
// directory. Writes go to a temp file which is renamed into place, so
// readers always see the last fully-committed checkpoint. Unknown fields
// in an existing file are ignored, allowing stage additions without
// breaking resume of in-flight jobs.
//
// Duplicate-activation protection is process-local; deployments running
// several orchestrator processes against shared state should use the
// Postgres store instead.
type FileStore struct {
	dir string

	mu     sync.Mutex
	active map[string]bool
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStore{dir: dir, active: map[string]bool{}}, nil
}

func (s *FileStore) path(instanceID string) string {
	// Instance IDs come from provider APIs; sanitize anyway.
	name := strings.ReplaceAll(instanceID, string(filepath.Separator), "_")
	return filepath.Join(s.dir, name+".json")
}

// Load returns the checkpointed job for an instance, or ErrNotFound.
func (s *FileStore) Load(instanceID string) (*models.MigrationJob, error) {
	data, err := os.ReadFile(s.path(instanceID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var job models.MigrationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint for %s: %w", instanceID, err)
	}
	if job.Artifacts == nil {
		job.Artifacts = map[string]string{}
	}
	return &job, nil
}

// Save writes the checkpoint atomically via write-new-then-rename.
func (s *FileStore) Save(job *models.MigrationJob) error {
	job.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	final := s.path(job.InstanceID)
	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	if job.Terminal() {
		s.mu.Lock()
		delete(s.active, job.InstanceID)
		s.mu.Unlock()
	}
	return nil
}

// Acquire marks the job running. A second activation for the same
// instance in this process is rejected; a job left running on disk by a
// crashed process is re-acquired.
func (s *FileStore) Acquire(job *models.MigrationJob) error {
	s.mu.Lock()
	if s.active[job.InstanceID] {
		s.mu.Unlock()
		return ErrJobActive
	}
	s.active[job.InstanceID] = true
	s.mu.Unlock()

	job.Status = models.JobStatusRunning
	if err := s.Save(job); err != nil {
		s.mu.Lock()
		delete(s.active, job.InstanceID)
		s.mu.Unlock()
		return err
	}
	return nil
}

// RecordEvent logs transitions into a per-instance events file. The
// trail is advisory; failures surface to the caller but the caller
// treats them as best effort.
func (s *FileStore) RecordEvent(ev models.JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	path := strings.TrimSuffix(s.path(ev.InstanceID), ".json") + ".events"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// List returns every checkpointed job in the state directory.
func (s *FileStore) List() ([]*models.MigrationJob, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state dir: %w", err)
	}
	var jobs []*models.MigrationJob
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		job, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

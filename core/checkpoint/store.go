// Package checkpoint persists migration job progress so the pipeline can
// resume after a crash without re-running completed stages.
package checkpoint

import (
	"errors"

	"vm-migrator/core/models"
)

// ErrNotFound is returned when no checkpoint exists for an instance.
var ErrNotFound = errors.New("checkpoint not found")

// ErrJobActive is returned when a second activation is attempted for an
// instance that already has a running job.
var ErrJobActive = errors.New("migration already active for instance")

// Store is the durable record of migration jobs, keyed by source
// instance ID. It is owned exclusively by the orchestrator; stages never
// write it directly. Save must be atomic: a crash mid-write never leaves
// a corrupt or partially-applied checkpoint.
type Store interface {
	// Load returns the checkpointed job for an instance, or ErrNotFound.
	Load(instanceID string) (*models.MigrationJob, error)
	// Save durably replaces the checkpoint for job.InstanceID.
	Save(job *models.MigrationJob) error
	// Acquire transitions the job to running, rejecting a concurrent
	// second activation for the same instance with ErrJobActive. A job
	// left running by a crashed process may be re-acquired.
	Acquire(job *models.MigrationJob) error
	// RecordEvent appends to the job's audit trail. Best effort.
	RecordEvent(ev models.JobEvent) error
	// List returns all known jobs.
	List() ([]*models.MigrationJob, error)
}

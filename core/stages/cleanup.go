package stages

import (
	"context"
	"log"

	"vm-migrator/core/models"
)

// CleanupStage removes the job's local staging directory. The
// orchestrator runs it exactly once per job on every exit path; removing
// an already-absent directory is not an error.
type CleanupStage struct {
	deps Deps
}

// NewCleanupStage returns the cleanup stage for a job's staging dir.
func NewCleanupStage(d Deps) *CleanupStage { return &CleanupStage{deps: d} }

func (s *CleanupStage) Name() models.Stage { return models.StageCleanup }

// Execute removes the staging directory recursively.
func (s *CleanupStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	if err := s.deps.Staging.Remove(); err != nil {
		return models.Fail(models.NewError(models.ErrKindLocalIO, "cleanup", err))
	}
	log.Printf("[%s] staging directory removed", job.InstanceID)
	return models.Succeed("")
}

// Compensate is a no-op; there is nothing to undo about removing
// scratch space.
func (s *CleanupStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	return nil
}

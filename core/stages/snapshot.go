package stages

import (
	"context"
	"log"

	"vm-migrator/core/models"
)

// SnapshotStage snapshots the source instance's root volume.
type SnapshotStage struct {
	deps Deps
}

func (s *SnapshotStage) Name() models.Stage { return models.StageSnapshot }

// Execute finds or creates the snapshot named after the instance.
func (s *SnapshotStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	if id := job.Artifact(models.StageSnapshot); id != "" {
		return models.Succeed(id)
	}

	name := SnapshotName(job.InstanceID)
	id, err := s.deps.Source.FindSnapshot(ctx, name)
	if err != nil {
		return models.Fail(err)
	}
	if id != "" {
		log.Printf("[%s] reusing snapshot %s (%s)", job.InstanceID, id, name)
		return models.Succeed(id)
	}

	id, err = s.deps.Source.CreateSnapshot(ctx, job.InstanceID, name)
	if err != nil {
		return models.Fail(err)
	}
	log.Printf("[%s] created snapshot %s", job.InstanceID, id)
	return models.Succeed(id)
}

// Compensate deletes the snapshot if it was produced.
func (s *SnapshotStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	id := job.Artifact(models.StageSnapshot)
	if id == "" {
		return nil
	}
	return s.deps.Source.DeleteSnapshot(ctx, id)
}

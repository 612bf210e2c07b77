package stages

import (
	"context"
	"log"

	"vm-migrator/core/models"
)

// ImageBuildStage registers a source-native machine image from the
// snapshot so it can be exported.
type ImageBuildStage struct {
	deps Deps
}

func (s *ImageBuildStage) Name() models.Stage { return models.StageImageBuild }

// Execute finds or registers the image derived from the snapshot.
func (s *ImageBuildStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	if id := job.Artifact(models.StageImageBuild); id != "" {
		return models.Succeed(id)
	}

	snapshotID, err := requireInput(job, models.StageSnapshot)
	if err != nil {
		return models.Fail(err)
	}

	name := ImageName(job.InstanceID)
	id, err := s.deps.Source.FindImage(ctx, name)
	if err != nil {
		return models.Fail(err)
	}
	if id != "" {
		log.Printf("[%s] reusing image %s (%s)", job.InstanceID, id, name)
		return models.Succeed(id)
	}

	id, err = s.deps.Source.CreateImage(ctx, snapshotID, name)
	if err != nil {
		return models.Fail(err)
	}
	log.Printf("[%s] registered image %s", job.InstanceID, id)
	return models.Succeed(id)
}

// Compensate deregisters the image if it was produced.
func (s *ImageBuildStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	id := job.Artifact(models.StageImageBuild)
	if id == "" {
		return nil
	}
	return s.deps.Source.DeregisterImage(ctx, id)
}

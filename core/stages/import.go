package stages

import (
	"context"
	"log"

	"vm-migrator/core/models"
	"vm-migrator/core/poller"
)

// ImportStage turns the uploaded blob into a destination-native image
// and waits for the import operation to finish. The artifact is the
// destination image name.
type ImportStage struct {
	deps Deps
}

func (s *ImportStage) Name() models.Stage { return models.StageImport }

// Execute finds an existing destination image with the derived name or
// starts the import and polls the returned operation.
func (s *ImportStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	if name := job.Artifact(models.StageImport); name != "" {
		return models.Succeed(name)
	}

	sourceURI, err := requireInput(job, models.StageTransferUp)
	if err != nil {
		return models.Fail(err)
	}

	name := DestImageName(job.InstanceID)
	exists, err := s.deps.Dest.FindImage(ctx, name)
	if err != nil {
		return models.Fail(err)
	}
	if exists {
		log.Printf("[%s] reusing destination image %s", job.InstanceID, name)
		return models.Succeed(name)
	}

	opID, err := s.deps.Dest.StartImageImport(ctx, name, sourceURI, s.deps.Spec.Destination.OSHint)
	if err != nil {
		return models.Fail(err)
	}
	log.Printf("[%s] image import operation %s started", job.InstanceID, opID)

	cfg, err := s.deps.Spec.Polling.ImportConfig()
	if err != nil {
		return models.Fail(err)
	}
	handle := poller.Handle{
		ID: opID,
		Status: func(ctx context.Context) (bool, bool, error) {
			return s.deps.Dest.ImportStatus(ctx, opID)
		},
	}
	res, pollErr := poller.WaitUntil(ctx, handle, cfg)
	if bad := resultFromPoll("importImage", res, pollErr); bad != nil {
		return *bad
	}
	log.Printf("[%s] destination image %s ready", job.InstanceID, name)
	return models.Succeed(name)
}

// Compensate deregisters the destination image.
func (s *ImportStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	name := job.Artifact(models.StageImport)
	if name == "" {
		return nil
	}
	return s.deps.Dest.DeleteImage(ctx, name)
}

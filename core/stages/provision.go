package stages

import (
	"context"
	"log"

	"vm-migrator/core/models"
)

// ProvisionStage creates the destination instance from the imported
// image. The creation call is synchronous-accept; the pipeline does not
// block on the instance reaching a running state.
type ProvisionStage struct {
	deps Deps
}

func (s *ProvisionStage) Name() models.Stage { return models.StageProvision }

// Execute finds or creates the destination instance.
func (s *ProvisionStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	if name := job.Artifact(models.StageProvision); name != "" {
		return models.Succeed(name)
	}

	imageName, err := requireInput(job, models.StageImport)
	if err != nil {
		return models.Fail(err)
	}

	name := DestInstanceName(job.InstanceID)
	zone := s.deps.Spec.Destination.Zone
	exists, err := s.deps.Dest.FindInstance(ctx, name, zone)
	if err != nil {
		return models.Fail(err)
	}
	if exists {
		log.Printf("[%s] reusing destination instance %s", job.InstanceID, name)
		return models.Succeed(name)
	}

	created, err := s.deps.Dest.CreateInstance(ctx, InstanceSpec{
		Name:        name,
		MachineType: s.deps.Spec.Destination.MachineType,
		ImageName:   imageName,
		Network:     s.deps.Spec.Destination.Network,
		Zone:        zone,
	})
	if err != nil {
		return models.Fail(err)
	}
	log.Printf("[%s] destination instance %s created", job.InstanceID, created)
	return models.Succeed(created)
}

// Compensate terminates the destination instance.
func (s *ProvisionStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	name := job.Artifact(models.StageProvision)
	if name == "" {
		return nil
	}
	return s.deps.Dest.DeleteInstance(ctx, name, s.deps.Spec.Destination.Zone)
}

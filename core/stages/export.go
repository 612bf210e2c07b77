package stages

import (
	"context"
	"fmt"
	"log"

	"vm-migrator/core/models"
	"vm-migrator/core/poller"
)

// ExportStage asks the source cloud to export the image into its object
// store and waits for the export task to finish. The artifact is the
// bucket/key of the exported blob.
type ExportStage struct {
	deps Deps
}

func (s *ExportStage) Name() models.Stage { return models.StageExport }

// Execute finds an already-exported blob under the instance's prefix or
// starts a fresh export task and polls it to completion.
func (s *ExportStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	if loc := job.Artifact(models.StageExport); loc != "" {
		return models.Succeed(loc)
	}

	imageID, err := requireInput(job, models.StageImageBuild)
	if err != nil {
		return models.Fail(err)
	}

	bucket := s.deps.Spec.Source.ExportBucket
	prefix := ExportPrefix(job.InstanceID)

	// A prior run's export may already have landed.
	key, err := s.deps.Source.FindExportedObject(ctx, bucket, prefix)
	if err != nil {
		return models.Fail(err)
	}
	if key != "" {
		log.Printf("[%s] reusing exported object s3://%s/%s", job.InstanceID, bucket, key)
		return models.Succeed(objectLocation(bucket, key))
	}

	taskID, err := s.deps.Source.StartExport(ctx, imageID, bucket, prefix, s.deps.Spec.Source.ExportFormat)
	if err != nil {
		return models.Fail(err)
	}
	log.Printf("[%s] export task %s started", job.InstanceID, taskID)

	cfg, err := s.deps.Spec.Polling.ExportConfig()
	if err != nil {
		return models.Fail(err)
	}
	handle := poller.Handle{
		ID: taskID,
		Status: func(ctx context.Context) (bool, bool, error) {
			st, err := s.deps.Source.ExportStatus(ctx, taskID)
			if err != nil {
				return false, false, err
			}
			if st.Done {
				key = st.Key
			}
			if st.Failed {
				return false, true, nil
			}
			return st.Done, false, nil
		},
	}
	res, pollErr := poller.WaitUntil(ctx, handle, cfg)
	if bad := resultFromPoll("exportImage", res, pollErr); bad != nil {
		return *bad
	}
	if key == "" {
		key, err = s.deps.Source.FindExportedObject(ctx, bucket, prefix)
		if err != nil {
			return models.Fail(err)
		}
		if key == "" {
			return models.Fail(models.NewError(models.ErrKindConflict, "exportImage",
				fmt.Errorf("export task %s completed but no object under %s", taskID, prefix)))
		}
	}
	log.Printf("[%s] export complete: s3://%s/%s", job.InstanceID, bucket, key)
	return models.Succeed(objectLocation(bucket, key))
}

// Compensate is a no-op: exported blobs expire with the bucket's
// lifecycle policy and an in-flight task cannot be usefully cancelled
// once the job is already failing.
func (s *ExportStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	return nil
}

func objectLocation(bucket, key string) string {
	return bucket + "/" + key
}

// splitObjectLocation undoes objectLocation.
func splitObjectLocation(loc string) (bucket, key string, err error) {
	for i := 0; i < len(loc); i++ {
		if loc[i] == '/' {
			return loc[:i], loc[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed object location %q", loc)
}

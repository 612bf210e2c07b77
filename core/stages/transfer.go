package stages

import (
	"context"
	"io"
	"log"
	"os"

	"vm-migrator/core/models"
)

// TransferDownStage downloads the exported blob from the source object
// store into the job's local staging directory.
type TransferDownStage struct {
	deps Deps
}

func (s *TransferDownStage) Name() models.Stage { return models.StageTransferDown }

// Execute streams the exported object to the staging blob path. A blob
// already staged by a prior run is reused.
func (s *TransferDownStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	loc, err := requireInput(job, models.StageExport)
	if err != nil {
		return models.Fail(err)
	}
	bucket, key, err := splitObjectLocation(loc)
	if err != nil {
		return models.Fail(models.NewError(models.ErrKindConflict, "getObject", err))
	}

	dest := s.deps.Staging.BlobPath()
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.Printf("[%s] reusing staged blob %s (%d bytes)", job.InstanceID, dest, info.Size())
		return models.Succeed(dest)
	}

	body, err := s.deps.Source.GetObject(ctx, bucket, key)
	if err != nil {
		return models.Fail(err)
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return models.Fail(models.NewError(models.ErrKindLocalIO, "getObject", err))
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return models.Fail(models.NewError(models.ErrKindLocalIO, "getObject", err))
	}
	log.Printf("[%s] downloaded %d bytes to %s", job.InstanceID, n, dest)
	return models.Succeed(dest)
}

// Compensate removes the staged blob.
func (s *TransferDownStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	path := job.Artifact(models.StageTransferDown)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TransferUpStage uploads the staged blob into the destination object
// store. The artifact is the destination object URI.
type TransferUpStage struct {
	deps Deps
}

func (s *TransferUpStage) Name() models.Stage { return models.StageTransferUp }

// Execute ensures the destination bucket and uploads the blob unless an
// object with the derived key already exists.
func (s *TransferUpStage) Execute(ctx context.Context, job *models.MigrationJob) models.StageResult {
	path, err := requireInput(job, models.StageTransferDown)
	if err != nil {
		return models.Fail(err)
	}

	bucket := s.deps.Spec.Destination.Bucket
	object := DestObjectKey(job.InstanceID)

	if err := s.deps.Dest.EnsureBucket(ctx, bucket); err != nil {
		return models.Fail(err)
	}

	exists, err := s.deps.Dest.ObjectExists(ctx, bucket, object)
	if err != nil {
		return models.Fail(err)
	}
	if exists {
		log.Printf("[%s] reusing uploaded object gs://%s/%s", job.InstanceID, bucket, object)
		return models.Succeed("gs://" + bucket + "/" + object)
	}

	f, err := os.Open(path)
	if err != nil {
		return models.Fail(models.NewError(models.ErrKindLocalIO, "putObject", err))
	}
	defer f.Close()

	uri, err := s.deps.Dest.UploadObject(ctx, bucket, object, f)
	if err != nil {
		return models.Fail(err)
	}
	log.Printf("[%s] uploaded blob to %s", job.InstanceID, uri)
	return models.Succeed(uri)
}

// Compensate deletes the destination object.
func (s *TransferUpStage) Compensate(ctx context.Context, job *models.MigrationJob) error {
	if job.Artifact(models.StageTransferUp) == "" {
		return nil
	}
	return s.deps.Dest.DeleteObject(ctx, s.deps.Spec.Destination.Bucket, DestObjectKey(job.InstanceID))
}

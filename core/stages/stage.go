// Package stages implements the discrete steps of the migration
// pipeline. Every stage is idempotent: before performing a remote
// create it checks for an artifact with its derived, deterministic name
// and reuses it, so the orchestrator can safely re-run a stage after a
// crash without duplicating billable resources.
package stages

import (
	"context"
	"fmt"
	"io"
	"strings"

	"vm-migrator/core/models"
	"vm-migrator/core/poller"
	"vm-migrator/core/spec"
	"vm-migrator/storage"
)

// Stage is one discrete migration step. Execute never lets an
// unclassified error escape; Compensate is a best-effort undo and may be
// a no-op.
type Stage interface {
	Name() models.Stage
	Execute(ctx context.Context, job *models.MigrationJob) models.StageResult
	Compensate(ctx context.Context, job *models.MigrationJob) error
}

// SourceProvider is the source-cloud collaborator. Find operations
// return "" (or a zero value) when the resource does not exist; errors
// crossing this boundary are classified MigrationErrors.
type SourceProvider interface {
	FindSnapshot(ctx context.Context, name string) (string, error)
	CreateSnapshot(ctx context.Context, instanceID, name string) (string, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error

	FindImage(ctx context.Context, name string) (string, error)
	CreateImage(ctx context.Context, snapshotID, name string) (string, error)
	DeregisterImage(ctx context.Context, imageID string) error

	FindExportedObject(ctx context.Context, bucket, prefix string) (string, error)
	StartExport(ctx context.Context, imageID, bucket, prefix, format string) (string, error)
	ExportStatus(ctx context.Context, taskID string) (ExportStatus, error)

	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ExportStatus is one observation of a running export task.
type ExportStatus struct {
	Done   bool
	Failed bool
	// Key is the object key of the exported blob, set once Done.
	Key string
	// Message carries the provider's failure detail, if any.
	Message string
}

// DestinationProvider is the destination-cloud collaborator.
type DestinationProvider interface {
	EnsureBucket(ctx context.Context, bucket string) error
	ObjectExists(ctx context.Context, bucket, object string) (bool, error)
	UploadObject(ctx context.Context, bucket, object string, r io.Reader) (string, error)
	DeleteObject(ctx context.Context, bucket, object string) error

	FindImage(ctx context.Context, name string) (bool, error)
	StartImageImport(ctx context.Context, name, sourceURI, osHint string) (string, error)
	ImportStatus(ctx context.Context, opID string) (done, failed bool, err error)
	DeleteImage(ctx context.Context, name string) error

	FindInstance(ctx context.Context, name, zone string) (bool, error)
	CreateInstance(ctx context.Context, inst InstanceSpec) (string, error)
	DeleteInstance(ctx context.Context, name, zone string) error
}

// InstanceSpec describes the destination instance to provision.
type InstanceSpec struct {
	Name        string
	MachineType string
	ImageName   string
	Network     string
	Zone        string
}

// Deps carries the collaborators shared by all stages. Stages never
// touch the checkpoint store; the orchestrator owns it.
type Deps struct {
	Source  SourceProvider
	Dest    DestinationProvider
	Spec    *spec.MigrationSection
	Staging *storage.StagingDir
}

// Pipeline returns the seven pipeline stages in fixed execution order.
// Cleanup is separate; the orchestrator runs it on every exit path.
func Pipeline(d Deps) []Stage {
	return []Stage{
		&SnapshotStage{d},
		&ImageBuildStage{d},
		&ExportStage{d},
		&TransferDownStage{d},
		&TransferUpStage{d},
		&ImportStage{d},
		&ProvisionStage{d},
	}
}

// Derived resource names. Keyed by the source instance ID so a re-run
// finds what a previous run created.

// SnapshotName returns the deterministic source snapshot name.
func SnapshotName(instanceID string) string {
	return "vm-migrate-" + sanitize(instanceID) + "-snap"
}

// ImageName returns the deterministic source image name.
func ImageName(instanceID string) string {
	return "vm-migrate-" + sanitize(instanceID) + "-image"
}

// ExportPrefix returns the object-key prefix exports land under.
func ExportPrefix(instanceID string) string {
	return "vm-migrate/" + instanceID + "/"
}

// DestObjectKey returns the destination-store object key for the blob.
func DestObjectKey(instanceID string) string {
	return "vm-migrate/" + instanceID + "/disk.raw"
}

// DestImageName returns the deterministic destination image name.
func DestImageName(instanceID string) string {
	return "vm-migrate-" + sanitize(instanceID)
}

// DestInstanceName returns the deterministic destination instance name.
func DestInstanceName(instanceID string) string {
	return "vm-migrate-" + sanitize(instanceID) + "-vm"
}

// sanitize lowercases and strips characters the destination cloud
// rejects in resource names.
func sanitize(id string) string {
	id = strings.ToLower(id)
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// requireInput fetches the artifact a stage depends on. A missing input
// means the checkpoint and the pipeline order disagree, which is not
// recoverable by retrying.
func requireInput(job *models.MigrationJob, stage models.Stage) (string, error) {
	ref := job.Artifact(stage)
	if ref == "" {
		return "", models.NewError(models.ErrKindConflict, "pipeline",
			fmt.Errorf("stage %s has no recorded artifact", stage))
	}
	return ref, nil
}

// resultFromPoll maps a poller outcome onto a stage result. A timeout is
// fatal: the operator must intervene rather than the pipeline silently
// retrying a wait that already consumed its budget.
func resultFromPoll(op string, res poller.Result, err error) *models.StageResult {
	switch res {
	case poller.Success:
		return nil
	case poller.Aborted:
		return &models.StageResult{
			Outcome: models.OutcomeAborted,
			Kind:    models.ErrKindAborted,
			Err:     models.NewError(models.ErrKindAborted, op, err),
		}
	case poller.TimedOut:
		return &models.StageResult{
			Outcome: models.OutcomeFatal,
			Kind:    models.ErrKindPollTimeout,
			Err:     models.NewError(models.ErrKindPollTimeout, op, err),
		}
	default: // RemoteFailure
		kind := models.KindOf(err)
		outcome := models.OutcomeFatal
		if kind.Retryable() {
			outcome = models.OutcomeRetryable
		}
		return &models.StageResult{
			Outcome: outcome,
			Kind:    kind,
			Err:     err,
		}
	}
}

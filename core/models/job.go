package models

import "time"

// MigrationJob represents a single instance migration from the source
// cloud to the destination cloud. Its identity is the source instance ID;
// at most one active job may exist per instance at a time.
type MigrationJob struct {
	InstanceID   string            `json:"instance_id"`
	RunID        string            `json:"run_id"`
	CurrentStage Stage             `json:"current_stage"`
	Status       JobStatus         `json:"status"`
	Artifacts    map[string]string `json:"artifacts"`
	FailedStage  Stage             `json:"failed_stage,omitempty"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty"`
	ErrorDetail  string            `json:"error_detail,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewMigrationJob creates a pending job for the given source instance.
func NewMigrationJob(instanceID string) *MigrationJob {
	now := time.Now().UTC()
	return &MigrationJob{
		InstanceID:   instanceID,
		CurrentStage: StageSnapshot,
		Status:       JobStatusPending,
		Artifacts:    map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Artifact returns the artifact recorded for a completed stage, or "".
func (j *MigrationJob) Artifact(stage Stage) string {
	return j.Artifacts[string(stage)]
}

// SetArtifact records the artifact produced by a confirmed-successful stage.
func (j *MigrationJob) SetArtifact(stage Stage, ref string) {
	if j.Artifacts == nil {
		j.Artifacts = map[string]string{}
	}
	j.Artifacts[string(stage)] = ref
	j.UpdatedAt = time.Now().UTC()
}

// ClearArtifact forgets a stage's artifact after the underlying
// resource has been deleted.
func (j *MigrationJob) ClearArtifact(stage Stage) {
	delete(j.Artifacts, string(stage))
	j.UpdatedAt = time.Now().UTC()
}

// LastArtifact returns the most recently produced artifact reference,
// following pipeline order, or "" if nothing has been produced yet.
func (j *MigrationJob) LastArtifact() (Stage, string) {
	var stage Stage
	var ref string
	for _, s := range PipelineStages {
		if a, ok := j.Artifacts[string(s)]; ok {
			stage, ref = s, a
		}
	}
	return stage, ref
}

// Terminal reports whether the job has reached a terminal status.
func (j *MigrationJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusAborted:
		return true
	}
	return false
}

// JobStatus represents the overall status of a migration job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusAborted   JobStatus = "aborted"
)

// Stage identifies one step of the migration pipeline.
type Stage string

const (
	StageSnapshot     Stage = "snapshot"
	StageImageBuild   Stage = "image_build"
	StageExport       Stage = "export"
	StageTransferDown Stage = "transfer_down"
	StageTransferUp   Stage = "transfer_up"
	StageImport       Stage = "import"
	StageProvision    Stage = "provision"
	StageCleanup      Stage = "cleanup"
)

// PipelineStages is the fixed forward order of the pipeline. Cleanup is
// not part of the sequence; the orchestrator runs it on every exit path.
var PipelineStages = []Stage{
	StageSnapshot,
	StageImageBuild,
	StageExport,
	StageTransferDown,
	StageTransferUp,
	StageImport,
	StageProvision,
}

// StageIndex returns the position of a stage in the pipeline, or -1.
func StageIndex(s Stage) int {
	for i, p := range PipelineStages {
		if p == s {
			return i
		}
	}
	return -1
}

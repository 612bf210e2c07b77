package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vm-migrator/core/checkpoint"
	"vm-migrator/core/models"
)

// CheckpointRepository is the Postgres implementation of the checkpoint
// store. The one-active-job-per-instance guarantee is enforced by a
// conditional status transition, so it holds across processes. A job
// whose lease has gone stale (no update for staleLease) may be
// re-acquired, covering crashed orchestrators.
type CheckpointRepository struct {
	db         *DB
	staleLease time.Duration
}

// NewCheckpointRepository creates a checkpoint repository. staleLease
// of zero disables crashed-job takeover.
func NewCheckpointRepository(db *DB, staleLease time.Duration) *CheckpointRepository {
	return &CheckpointRepository{db: db, staleLease: staleLease}
}

var _ checkpoint.Store = (*CheckpointRepository)(nil)

// Load returns the checkpointed job for an instance, or ErrNotFound.
func (r *CheckpointRepository) Load(instanceID string) (*models.MigrationJob, error) {
	query := `
		SELECT instance_id, run_id, current_stage, status, artifacts,
			failed_stage, error_kind, error_detail, created_at, updated_at
		FROM migration_jobs
		WHERE instance_id = $1
	`
	job, err := scanJob(r.db.QueryRow(query, instanceID))
	if err == sql.ErrNoRows {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return job, nil
}

// Save upserts the checkpoint row. The single-row write is atomic.
func (r *CheckpointRepository) Save(job *models.MigrationJob) error {
	job.UpdatedAt = time.Now().UTC()
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}

	query := `
		INSERT INTO migration_jobs (
			instance_id, run_id, current_stage, status, artifacts,
			failed_stage, error_kind, error_detail, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instance_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			current_stage = EXCLUDED.current_stage,
			status = EXCLUDED.status,
			artifacts = EXCLUDED.artifacts,
			failed_stage = EXCLUDED.failed_stage,
			error_kind = EXCLUDED.error_kind,
			error_detail = EXCLUDED.error_detail,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Exec(query,
		job.InstanceID,
		job.RunID,
		job.CurrentStage,
		job.Status,
		artifacts,
		job.FailedStage,
		job.ErrorKind,
		job.ErrorDetail,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Acquire transitions the job to running. A second activation while
// another run holds the row is rejected with ErrJobActive. The row is
// inserted if absent but never overwritten here, so a concurrent
// holder's lease timestamp stays intact.
func (r *CheckpointRepository) Acquire(job *models.MigrationJob) error {
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}
	insert := `
		INSERT INTO migration_jobs (
			instance_id, run_id, current_stage, status, artifacts,
			failed_stage, error_kind, error_detail, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, '', '', '', $6, $6)
		ON CONFLICT (instance_id) DO NOTHING
	`
	if _, err := r.db.Exec(insert,
		job.InstanceID, job.RunID, job.CurrentStage, job.Status,
		artifacts, job.CreatedAt); err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	query := `
		UPDATE migration_jobs
		SET status = $1, run_id = $2, updated_at = NOW()
		WHERE instance_id = $3
			AND (status <> $1 OR ($4 > 0 AND updated_at < NOW() - ($4 * INTERVAL '1 second')))
	`
	res, err := r.db.Exec(query,
		models.JobStatusRunning, job.RunID, job.InstanceID, int64(r.staleLease.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to acquire job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return checkpoint.ErrJobActive
	}
	job.Status = models.JobStatusRunning
	return nil
}

// RecordEvent appends to the migration_events audit table.
func (r *CheckpointRepository) RecordEvent(ev models.JobEvent) error {
	query := `
		INSERT INTO migration_events (instance_id, run_id, stage, from_status, to_status, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var from *string
	if ev.FromStatus != nil {
		s := string(*ev.FromStatus)
		from = &s
	}
	_, err := r.db.Exec(query, ev.InstanceID, ev.RunID, ev.Stage, from, ev.ToStatus, ev.Reason, ev.At)
	return err
}

// List returns all known jobs, most recently updated first.
func (r *CheckpointRepository) List() ([]*models.MigrationJob, error) {
	query := `
		SELECT instance_id, run_id, current_stage, status, artifacts,
			failed_stage, error_kind, error_detail, created_at, updated_at
		FROM migration_jobs
		ORDER BY updated_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.MigrationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Events returns the audit trail for an instance, newest first.
func (r *CheckpointRepository) Events(instanceID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT instance_id, run_id, stage, from_status, to_status, reason, at
		FROM migration_events
		WHERE instance_id = $1
		ORDER BY at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var ev models.JobEvent
		var from sql.NullString
		if err := rows.Scan(&ev.InstanceID, &ev.RunID, &ev.Stage, &from, &ev.ToStatus, &ev.Reason, &ev.At); err != nil {
			return nil, err
		}
		if from.Valid {
			s := models.JobStatus(from.String)
			ev.FromStatus = &s
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.MigrationJob, error) {
	var job models.MigrationJob
	var artifacts []byte
	err := row.Scan(
		&job.InstanceID,
		&job.RunID,
		&job.CurrentStage,
		&job.Status,
		&artifacts,
		&job.FailedStage,
		&job.ErrorKind,
		&job.ErrorDetail,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(artifacts, &job.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to decode artifacts: %w", err)
	}
	if job.Artifacts == nil {
		job.Artifacts = map[string]string{}
	}
	return &job, nil
}

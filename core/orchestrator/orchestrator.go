// Package orchestrator drives the migration pipeline: it sequences
// stages according to the checkpoint, decides retry versus escalate,
// runs reverse-order compensation on fatal failure, and guarantees
// cleanup on every exit path.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"vm-migrator/core/checkpoint"
	"vm-migrator/core/models"
	"vm-migrator/core/stages"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Orchestrator owns one migration job's pipeline. It is the sole writer
// of the job's checkpoint and the sole authority on retry, escalation,
// and compensation.
type Orchestrator struct {
	store       checkpoint.Store
	pipeline    []stages.Stage
	cleanup     stages.Stage
	retryBudget int

	// retryWait produces the delay before re-invoking a Retryable
	// stage. Swapped out in tests.
	retryWait backoff.BackOff
}

// New creates an orchestrator over the given checkpoint store and
// stage set. retryBudget bounds consecutive retries of one stage before
// escalating to fatal.
func New(store checkpoint.Store, pipeline []stages.Stage, cleanup stages.Stage, retryBudget int) *Orchestrator {
	if retryBudget < 1 {
		retryBudget = 1
	}
	return &Orchestrator{
		store:       store,
		pipeline:    pipeline,
		cleanup:     cleanup,
		retryBudget: retryBudget,
		retryWait:   backoff.NewExponentialBackOff(),
	}
}

// Report is the terminal outcome surfaced to the operator. It names the
// failing stage, the classified error kind, and the last successfully
// produced artifact so remaining cleanup can be completed or rolled
// back by hand.
type Report struct {
	Job           *models.MigrationJob
	FailedStage   models.Stage
	ErrorKind     models.ErrorKind
	Err           error
	LastArtifact  string
	ArtifactStage models.Stage
}

// Completed reports whether the job finished successfully.
func (r *Report) Completed() bool {
	return r.Job != nil && r.Job.Status == models.JobStatusCompleted
}

// Summary renders the one-line terminal message.
func (r *Report) Summary() string {
	if r.Completed() {
		return fmt.Sprintf("migration of %s completed: instance %s",
			r.Job.InstanceID, r.Job.Artifact(models.StageProvision))
	}
	msg := fmt.Sprintf("migration of %s %s at stage %s (%s)",
		r.Job.InstanceID, r.Job.Status, r.FailedStage, r.ErrorKind)
	if r.LastArtifact != "" {
		msg += fmt.Sprintf("; last artifact %s=%s", r.ArtifactStage, r.LastArtifact)
	}
	return msg
}

// Run executes the pipeline for the given instance, resuming from an
// existing checkpoint when one is present. It returns a terminal report;
// the error is non-nil when the job did not complete.
func (o *Orchestrator) Run(ctx context.Context, instanceID string) (*Report, error) {
	job, err := o.store.Load(instanceID)
	if err == checkpoint.ErrNotFound {
		job = models.NewMigrationJob(instanceID)
	} else if err != nil {
		return nil, err
	}

	if job.Status == models.JobStatusCompleted {
		log.Printf("[%s] already completed, nothing to do", instanceID)
		return &Report{Job: job}, nil
	}

	prev := job.Status
	job.RunID = uuid.NewString()
	job.FailedStage = ""
	job.ErrorKind = ""
	job.ErrorDetail = ""
	if err := o.store.Acquire(job); err != nil {
		return nil, fmt.Errorf("cannot activate migration for %s: %w", instanceID, err)
	}
	o.event(job, job.CurrentStage, &prev, models.JobStatusRunning, "run_started")
	log.Printf("[%s] run %s started at stage %s", instanceID, job.RunID, job.CurrentStage)

	idx := models.StageIndex(job.CurrentStage)
	if idx < 0 {
		idx = len(o.pipeline)
	}

	for ; idx < len(o.pipeline); idx++ {
		st := o.pipeline[idx]
		res := o.executeWithRetry(ctx, st, job)
		if res.Outcome != models.OutcomeSuccess {
			return o.fail(ctx, job, st.Name(), res)
		}

		job.SetArtifact(st.Name(), res.Artifact)
		if idx+1 < len(o.pipeline) {
			job.CurrentStage = o.pipeline[idx+1].Name()
		} else {
			job.CurrentStage = models.StageCleanup
		}
		if err := o.store.Save(job); err != nil {
			return o.fail(ctx, job, st.Name(), models.Fail(
				models.NewError(models.ErrKindLocalIO, "checkpoint", err)))
		}
		o.event(job, st.Name(), nil, models.JobStatusRunning, "stage_completed:"+string(st.Name()))
	}

	o.runCleanup(ctx, job)

	running := models.JobStatusRunning
	job.Status = models.JobStatusCompleted
	if err := o.store.Save(job); err != nil {
		return nil, fmt.Errorf("failed to persist terminal checkpoint: %w", err)
	}
	o.event(job, job.CurrentStage, &running, models.JobStatusCompleted, "run_completed")

	stage, ref := job.LastArtifact()
	return &Report{Job: job, LastArtifact: ref, ArtifactStage: stage}, nil
}

// executeWithRetry re-invokes the stage on Retryable results up to the
// retry budget, then escalates the last result to fatal.
func (o *Orchestrator) executeWithRetry(ctx context.Context, st stages.Stage, job *models.MigrationJob) models.StageResult {
	o.retryWait.Reset()
	var res models.StageResult
	for attempt := 0; ; attempt++ {
		res = st.Execute(ctx, job)
		if res.Outcome != models.OutcomeRetryable {
			return res
		}
		if attempt >= o.retryBudget {
			log.Printf("[%s] stage %s exhausted %d retries: %v",
				job.InstanceID, st.Name(), o.retryBudget, res.Err)
			res.Outcome = models.OutcomeFatal
			return res
		}
		wait := o.retryWait.NextBackOff()
		if wait == backoff.Stop {
			wait = time.Second
		}
		log.Printf("[%s] stage %s transient failure (attempt %d/%d), retrying in %s: %v",
			job.InstanceID, st.Name(), attempt+1, o.retryBudget, wait, res.Err)
		select {
		case <-ctx.Done():
			return models.StageResult{
				Outcome: models.OutcomeAborted,
				Kind:    models.ErrKindAborted,
				Err:     models.NewError(models.ErrKindAborted, string(st.Name()), ctx.Err()),
			}
		case <-time.After(wait):
		}
	}
}

// fail persists the terminal failure, compensates completed stages in
// reverse order, runs cleanup, and builds the terminal report.
func (o *Orchestrator) fail(ctx context.Context, job *models.MigrationJob, failed models.Stage, res models.StageResult) (*Report, error) {
	running := models.JobStatusRunning
	status := models.JobStatusFailed
	if res.Outcome == models.OutcomeAborted {
		status = models.JobStatusAborted
	}
	job.Status = status
	job.FailedStage = failed
	job.ErrorKind = res.Kind
	if res.Err != nil {
		job.ErrorDetail = res.Err.Error()
	}
	if err := o.store.Save(job); err != nil {
		log.Printf("[%s] failed to persist terminal checkpoint: %v", job.InstanceID, err)
	}
	o.event(job, failed, &running, status, "stage_failed:"+string(failed))
	log.Printf("[%s] stage %s %s (%s): %v", job.InstanceID, failed, status, res.Kind, res.Err)

	if err := o.compensate(ctx, job, failed); err != nil {
		log.Printf("[%s] compensation incomplete: %v", job.InstanceID, err)
	}
	// Compensation deleted remote resources; the checkpoint must not
	// keep pointing a later resume at them.
	if err := o.store.Save(job); err != nil {
		log.Printf("[%s] failed to persist compensated checkpoint: %v", job.InstanceID, err)
	}
	o.runCleanup(ctx, job)

	stage, ref := job.LastArtifact()
	report := &Report{
		Job:           job,
		FailedStage:   failed,
		ErrorKind:     res.Kind,
		Err:           res.Err,
		LastArtifact:  ref,
		ArtifactStage: stage,
	}
	return report, fmt.Errorf("%s", report.Summary())
}

// compensate undoes every stage completed before the failed one, in
// reverse order. A compensation failure is collected and logged but
// does not block compensating the remaining stages. Each compensated
// artifact is dropped from the job so a later resume recreates the
// resource instead of chasing a deleted reference.
func (o *Orchestrator) compensate(ctx context.Context, job *models.MigrationJob, failed models.Stage) error {
	// Compensation must proceed even when the abort came from the run
	// context, so it gets its own.
	cctx := context.WithoutCancel(ctx)

	limit := models.StageIndex(failed)
	if limit < 0 {
		limit = len(o.pipeline)
	}
	var merr *multierror.Error
	for i := limit - 1; i >= 0; i-- {
		st := o.pipeline[i]
		if job.Artifact(st.Name()) == "" {
			continue
		}
		log.Printf("[%s] compensating stage %s", job.InstanceID, st.Name())
		if err := st.Compensate(cctx, job); err != nil {
			log.Printf("[%s] compensation for %s failed: %v", job.InstanceID, st.Name(), err)
			merr = multierror.Append(merr, fmt.Errorf("compensate %s: %w", st.Name(), err))
			continue
		}
		job.ClearArtifact(st.Name())
	}

	// Resume from the first stage with no surviving artifact.
	job.CurrentStage = models.PipelineStages[0]
	for _, s := range models.PipelineStages {
		if job.Artifact(s) == "" {
			job.CurrentStage = s
			break
		}
	}
	return merr.ErrorOrNil()
}

// runCleanup removes local staging exactly once per run, on every exit
// path, regardless of outcome.
func (o *Orchestrator) runCleanup(ctx context.Context, job *models.MigrationJob) {
	cctx := context.WithoutCancel(ctx)
	if res := o.cleanup.Execute(cctx, job); res.Outcome != models.OutcomeSuccess {
		log.Printf("[%s] cleanup failed: %v", job.InstanceID, res.Err)
	}
}

func (o *Orchestrator) event(job *models.MigrationJob, stage models.Stage, from *models.JobStatus, to models.JobStatus, reason string) {
	ev := models.JobEvent{
		InstanceID: job.InstanceID,
		RunID:      job.RunID,
		Stage:      stage,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		At:         time.Now().UTC(),
	}
	if err := o.store.RecordEvent(ev); err != nil {
		log.Printf("[%s] failed to record event %s: %v", job.InstanceID, reason, err)
	}
}

package models

// Outcome classifies the result of one stage execution.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable"
	OutcomeFatal     Outcome = "fatal"
	OutcomeAborted   Outcome = "aborted"
)

// StageResult is the transient value a stage returns to the orchestrator.
// It is never persisted beyond the checkpoint update it triggers.
type StageResult struct {
	Outcome  Outcome
	Artifact string
	Kind     ErrorKind
	Err      error
}

// Succeed returns a successful result carrying the produced artifact.
func Succeed(artifact string) StageResult {
	return StageResult{Outcome: OutcomeSuccess, Artifact: artifact}
}

// Fail classifies err and returns the matching non-success result. The
// orchestrator, not the stage, decides what happens next.
func Fail(err error) StageResult {
	kind := KindOf(err)
	switch {
	case kind == ErrKindAborted:
		return StageResult{Outcome: OutcomeAborted, Kind: kind, Err: err}
	case kind.Retryable():
		return StageResult{Outcome: OutcomeRetryable, Kind: kind, Err: err}
	default:
		return StageResult{Outcome: OutcomeFatal, Kind: kind, Err: err}
	}
}

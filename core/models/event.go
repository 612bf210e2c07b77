package models

import "time"

// JobEvent records one transition in a migration job's lifecycle, used
// for the audit trail exposed by the status API.
type JobEvent struct {
	InstanceID string     `json:"instance_id"`
	RunID      string     `json:"run_id"`
	Stage      Stage      `json:"stage"`
	FromStatus *JobStatus `json:"from_status,omitempty"`
	ToStatus   JobStatus  `json:"to_status"`
	Reason     string     `json:"reason"`
	At         time.Time  `json:"at"`
}

package models

import "time"

// JobState represents the lifecycle state of a background job.
// Transitions are one-directional: running -> succeeded or running -> failed.
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether the state can no longer change
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// StageInfo identifies the stage a job is executing.
// Single-stage jobs stay at index 0 with an empty name.
type StageInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
}

// JobMeta describes who started a job and why. It travels with the job into
// events and the history record.
type JobMeta struct {
	Kind      string `json:"kind"`   // Operation kind, e.g. "export-module"
	Key       string `json:"key"`    // Registry key the job was started under
	SessionID string `json:"-"`      // Owning session; kept server-side
	Target    string `json:"target"` // Module name or project ID the operation acts on
}

// JobRecord is the persisted summary of a finished job (audit trail only).
type JobRecord struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Key          string    `json:"key"`
	SessionID    string    `json:"-"` // Session cookie value; never leaves the server
	Target       string    `json:"target"`
	State        JobState  `json:"state"`
	Error        string    `json:"error,omitempty"`
	Stage        StageInfo `json:"stage"`
	Chunks       uint64    `json:"chunks"`        // Total progress chunks written
	EvictedBytes int64     `json:"evicted_bytes"` // Bytes dropped by the sink ceiling
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns the wall time the job ran for
func (r *JobRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Work is a unit of background work. It runs on its own goroutine, writes
// progress through p and returns a result or an error. Panics are captured.
type Work func(ctx context.Context, p *Progress) (interface{}, error)

// Snapshot is a consistent view of a job's state
type Snapshot struct {
	State      models.JobState
	Result     interface{}
	Err        error
	Stage      models.StageInfo
	StartedAt  time.Time
	FinishedAt time.Time
}

type outcome struct {
	state      models.JobState
	result     interface{}
	err        error
	finishedAt time.Time
}

// Job is a single background execution with a ProgressSink and a terminal outcome.
// The outcome is published through an atomic pointer so a finished job is never
// observed as running by a later reader.
type Job struct {
	id        string
	meta      models.JobMeta
	sink      *ProgressSink
	progress  *Progress
	runner    *Runner
	startedAt time.Time

	outcome     atomic.Pointer[outcome]
	stage       atomic.Pointer[models.StageInfo]
	lastTouched atomic.Int64
	delivered   atomic.Bool
	done        chan struct{}
}

func newJob(runner *Runner, meta models.JobMeta) *Job {
	j := &Job{
		id:        common.NewJobID(),
		meta:      meta,
		sink:      NewProgressSink(runner.sinkCeiling),
		runner:    runner,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	j.progress = &Progress{job: j}
	j.stage.Store(&models.StageInfo{})
	j.lastTouched.Store(j.startedAt.UnixNano())
	return j
}

// ID returns the process-unique job ID
func (j *Job) ID() string {
	return j.id
}

// Meta returns the kind/key/session the job was started with
func (j *Job) Meta() models.JobMeta {
	return j.meta
}

// Sink returns the job's progress sink
func (j *Job) Sink() *ProgressSink {
	return j.sink
}

// IsRunning reports whether the work function has not yet returned
func (j *Job) IsRunning() bool {
	return j.outcome.Load() == nil
}

// Done returns a channel closed once the job is terminal
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is terminal or ctx is done. Not for request paths.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state
func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{
		State:     models.JobStateRunning,
		Stage:     *j.stage.Load(),
		StartedAt: j.startedAt,
	}
	if o := j.outcome.Load(); o != nil {
		snap.State = o.state
		snap.Result = o.result
		snap.Err = o.err
		snap.FinishedAt = o.finishedAt
	}
	return snap
}

// Drain returns progress appended since cursor together with the job state.
// State is read before the sink: a terminal state guarantees every chunk the
// job wrote is already in the sink, so a terminal drain never misses output.
func (j *Job) Drain(cursor uint64) ([]models.ProgressChunk, uint64, Snapshot, error) {
	snap := j.Snapshot()
	chunks, next, err := j.sink.ReadSince(cursor)
	if err != nil {
		return nil, next, snap, err
	}
	j.touch()
	return chunks, next, snap, nil
}

// IdleSince returns the later of the last drain and the finish time
func (j *Job) IdleSince() time.Time {
	last := time.Unix(0, j.lastTouched.Load())
	if o := j.outcome.Load(); o != nil && o.finishedAt.After(last) {
		return o.finishedAt
	}
	return last
}

// claimDelivery marks the terminal outcome as handed to a poller. Exactly one
// caller gets true.
func (j *Job) claimDelivery() bool {
	return j.delivered.CompareAndSwap(false, true)
}

func (j *Job) touch() {
	j.lastTouched.Store(time.Now().UnixNano())
}

func (j *Job) setStage(stage models.StageInfo) {
	j.stage.Store(&stage)
	j.runner.logger.Debug().
		Str("job_id", j.id).
		Str("key", j.meta.Key).
		Int("stage", stage.Index).
		Str("stage_name", stage.Name).
		Msg("Job entered stage")
	j.runner.publish(interfaces.EventJobStage, j.eventPayload(map[string]interface{}{
		"stage":      stage.Index,
		"stage_name": stage.Name,
	}))
}

func (j *Job) notifyProgress(seq uint64, format models.ReportFormat, text string) {
	j.runner.publish(interfaces.EventJobProgress, j.eventPayload(map[string]interface{}{
		"seq":    seq,
		"format": string(format),
		"text":   text,
	}))
}

// run executes work and records the outcome. It never lets a panic escape.
func (j *Job) run(ctx context.Context, work Work) {
	defer func() {
		if r := recover(); r != nil {
			stack := common.PanicStack()
			j.runner.logger.Error().
				Str("job_id", j.id).
				Str("key", j.meta.Key).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack).
				Msg("Job work panicked")
			j.fail(fmt.Errorf("panic: %v", r), true)
		}
	}()

	result, err := work(ctx, j.progress)
	if err != nil {
		j.fail(err, false)
		return
	}
	j.finish(&outcome{state: models.JobStateSucceeded, result: result, finishedAt: time.Now()})
}

func (j *Job) fail(err error, panicked bool) {
	stage := *j.stage.Load()
	jobErr := &JobError{
		JobID:     j.id,
		Stage:     stage.Index,
		StageName: stage.Name,
		Panicked:  panicked,
		Err:       err,
	}
	j.progress.Exception(jobErr)
	j.finish(&outcome{state: models.JobStateFailed, err: jobErr, finishedAt: time.Now()})
}

// finish publishes the terminal outcome exactly once
func (j *Job) finish(o *outcome) {
	if !j.outcome.CompareAndSwap(nil, o) {
		return
	}
	close(j.done)
	j.runner.finished(j, o)
}

func (j *Job) eventPayload(extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"job_id":     j.id,
		"key":        j.meta.Key,
		"kind":       j.meta.Kind,
		"target":     j.meta.Target,
		"session_id": j.meta.SessionID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

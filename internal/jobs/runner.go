package jobs

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Runner starts jobs. Every Start spawns its own goroutine; there is no queue
// or pool. A bounded pool can be placed behind Start without changing callers.
type Runner struct {
	logger       arbor.ILogger
	eventService interfaces.EventService // Optional: may be nil for testing
	sinkCeiling  int
}

// NewRunner creates a job runner. sinkCeiling caps retained progress bytes per job (<= 0 disables).
func NewRunner(logger arbor.ILogger, eventService interfaces.EventService, sinkCeiling int) *Runner {
	return &Runner{
		logger:       logger,
		eventService: eventService,
		sinkCeiling:  sinkCeiling,
	}
}

// Start spawns work on a new goroutine and returns its Job immediately.
// The work runs detached from any request context.
func (r *Runner) Start(meta models.JobMeta, work Work) *Job {
	job := newJob(r, meta)

	r.logger.Info().
		Str("job_id", job.id).
		Str("key", meta.Key).
		Str("kind", meta.Kind).
		Str("target", meta.Target).
		Str("session_id", meta.SessionID).
		Msg("Starting background job")

	r.publish(interfaces.EventJobStarted, job.eventPayload(nil))

	common.SafeGo(r.logger, "job:"+job.id, func() {
		job.run(context.Background(), work)
	})

	return job
}

func (r *Runner) finished(job *Job, o *outcome) {
	stats := job.sink.Stats()
	stage := *job.stage.Load()
	duration := o.finishedAt.Sub(job.startedAt)

	if o.state == models.JobStateFailed {
		r.logger.Warn().
			Err(o.err).
			Str("job_id", job.id).
			Str("key", job.meta.Key).
			Int("stage", stage.Index).
			Dur("duration", duration).
			Msg("Background job failed")
		r.publish(interfaces.EventJobFailed, job.eventPayload(map[string]interface{}{
			"error":  o.err.Error(),
			"record": job.record(o, stats),
		}))
		return
	}

	r.logger.Info().
		Str("job_id", job.id).
		Str("key", job.meta.Key).
		Int64("chunks", int64(stats.Written)).
		Dur("duration", duration).
		Msg("Background job succeeded")
	r.publish(interfaces.EventJobCompleted, job.eventPayload(map[string]interface{}{
		"record": job.record(o, stats),
	}))
}

func (r *Runner) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if r.eventService == nil {
		return
	}
	if err := r.eventService.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish job event")
	}
}

func (j *Job) record(o *outcome, stats SinkStats) *models.JobRecord {
	rec := &models.JobRecord{
		ID:           j.id,
		Kind:         j.meta.Kind,
		Key:          j.meta.Key,
		SessionID:    j.meta.SessionID,
		Target:       j.meta.Target,
		State:        o.state,
		Stage:        *j.stage.Load(),
		Chunks:       stats.Written,
		EvictedBytes: stats.EvictedBytes,
		StartedAt:    j.startedAt,
		FinishedAt:   o.finishedAt,
	}
	if o.err != nil {
		rec.Error = o.err.Error()
	}
	return rec
}

package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// PollResult is one of PollNotFound, PollProgress or PollDone
type PollResult interface {
	isPollResult()
}

// PollNotFound means nothing is registered under the key: never started,
// already acknowledged, or the session was torn down.
type PollNotFound struct {
	Key string
}

// PollProgress means the job is still running
type PollProgress struct {
	Key    string
	JobID  string
	Chunks []models.ProgressChunk
	Cursor uint64
	Stage  models.StageInfo
}

// PollDone carries the terminal outcome and any final unread chunks. It is
// returned once per job; the handle has already been acknowledged.
type PollDone struct {
	Key     string
	JobID   string
	Chunks  []models.ProgressChunk
	Cursor  uint64
	Stage   models.StageInfo
	Outcome Outcome
}

func (PollNotFound) isPollResult() {}
func (PollProgress) isPollResult() {}
func (PollDone) isPollResult()     {}

// Outcome is the terminal result of a job
type Outcome struct {
	Result interface{}
	Err    error
}

// OK reports whether the job succeeded
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Responder answers poll requests against a session's registry
type Responder struct {
	logger       arbor.ILogger
	eventService interfaces.EventService // Optional: may be nil for testing
}

// NewResponder creates a poll responder
func NewResponder(logger arbor.ILogger, eventService interfaces.EventService) *Responder {
	return &Responder{
		logger:       logger,
		eventService: eventService,
	}
}

// Poll returns a non-blocking snapshot of the job under key. On the terminal
// state it acknowledges the handle, so a later poll returns PollNotFound.
// Only cursor misuse (ErrInvalidState) is returned as an error.
func (s *Responder) Poll(registry *Registry, key string, cursor uint64) (PollResult, error) {
	return s.PollJob(registry, key, "", cursor)
}

// PollJob is Poll with the cursor bound to jobID: a cursor issued by an
// earlier job under the same key is rejected with ErrInvalidState instead of
// being applied to the new job's sink. An empty jobID skips the check.
func (s *Responder) PollJob(registry *Registry, key, jobID string, cursor uint64) (PollResult, error) {
	h, ok := registry.Get(key)
	if !ok {
		return PollNotFound{Key: key}, nil
	}
	return s.pollHandle(registry, h, jobID, cursor)
}

func (s *Responder) pollHandle(registry *Registry, h *Handle, jobID string, cursor uint64) (PollResult, error) {
	key := h.key
	if jobID != "" && jobID != h.job.id {
		s.logger.Warn().Str("key", key).Str("job_id", h.job.id).Str("cursor_job_id", jobID).Msg("Poll with cursor of another job")
		return nil, fmt.Errorf("%w: cursor belongs to job %s, key %s now holds job %s", ErrInvalidState, jobID, key, h.job.id)
	}

	chunks, next, snap, err := h.job.Drain(cursor)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Str("job_id", h.job.id).Msg("Poll with invalid cursor")
		return nil, err
	}

	if !snap.State.IsTerminal() {
		return PollProgress{
			Key:    key,
			JobID:  h.job.id,
			Chunks: chunks,
			Cursor: next,
			Stage:  snap.Stage,
		}, nil
	}

	// A concurrent poller may have delivered Done already. The claim is on the
	// job, not the registry entry, so a reap racing this poll cannot swallow it.
	if !h.job.claimDelivery() {
		return PollNotFound{Key: key}, nil
	}
	registry.acknowledgeHandle(h)

	s.logger.Debug().
		Str("key", key).
		Str("job_id", h.job.id).
		Str("state", string(snap.State)).
		Msg("Job outcome delivered and acknowledged")

	if s.eventService != nil {
		payload := h.job.eventPayload(map[string]interface{}{"state": string(snap.State)})
		if err := s.eventService.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobAcknowledged, Payload: payload}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish acknowledgement event")
		}
	}

	return PollDone{
		Key:     key,
		JobID:   h.job.id,
		Chunks:  chunks,
		Cursor:  next,
		Stage:   snap.Stage,
		Outcome: Outcome{Result: snap.Result, Err: snap.Err},
	}, nil
}

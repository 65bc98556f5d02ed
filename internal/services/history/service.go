package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Service records finished jobs to history storage. Records are an audit
// trail only; a restarted process never resumes or re-delivers them.
type Service struct {
	storage interfaces.JobHistoryStorage
	logger  arbor.ILogger
}

// NewService creates a history service
func NewService(storage interfaces.JobHistoryStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Subscribe attaches the recorder to job_completed and job_failed
func (s *Service) Subscribe(eventService interfaces.EventService) error {
	for _, eventType := range []interfaces.EventType{interfaces.EventJobCompleted, interfaces.EventJobFailed} {
		if err := eventService.Subscribe(eventType, s.handleFinished); err != nil {
			return fmt.Errorf("failed to subscribe history to %s: %w", eventType, err)
		}
	}
	return nil
}

func (s *Service) handleFinished(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}
	record, ok := payload["record"].(*models.JobRecord)
	if !ok || record == nil {
		return fmt.Errorf("event %s carries no job record", event.Type)
	}

	if err := s.storage.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to record job %s: %w", record.ID, err)
	}

	s.logger.Debug().
		Str("job_id", record.ID).
		Str("key", record.Key).
		Str("state", string(record.State)).
		Msg("Job recorded to history")
	return nil
}

// List returns recorded jobs, newest first
func (s *Service) List(ctx context.Context, opts *interfaces.HistoryListOptions) ([]*models.JobRecord, error) {
	return s.storage.ListRecords(ctx, opts)
}

// Get returns one recorded job
func (s *Service) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	return s.storage.GetRecord(ctx, id)
}

// ListForSession returns the session's recorded jobs, newest first. Any
// SessionID already set on opts is overridden.
func (s *Service) ListForSession(ctx context.Context, sessionID string, opts *interfaces.HistoryListOptions) ([]*models.JobRecord, error) {
	scoped := interfaces.HistoryListOptions{SessionID: sessionID}
	if opts != nil {
		scoped.Kind = opts.Kind
		scoped.Limit = opts.Limit
	}
	return s.storage.ListRecords(ctx, &scoped)
}

// GetForSession returns one recorded job owned by sessionID. A record of
// another session is reported as ErrRecordNotFound.
func (s *Service) GetForSession(ctx context.Context, sessionID, id string) (*models.JobRecord, error) {
	record, err := s.storage.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if sessionID == "" || record.SessionID != sessionID {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, id)
	}
	return record, nil
}

// Purge removes records older than retention. A retention <= 0 keeps everything.
func (s *Service) Purge(ctx context.Context, retention time.Duration, now time.Time) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	deleted, err := s.storage.DeleteRecordsBefore(ctx, now.Add(-retention).Unix())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Dur("retention", retention).Msg("Purged job history")
	}
	return deleted, nil
}

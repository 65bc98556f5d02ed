package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/jobs"
	"github.com/ternarybob/vigil/internal/models"
)

// ErrInvalidRequest wraps request validation failures
var ErrInvalidRequest = errors.New("invalid operation request")

// StartRequest is the body of a start call
type StartRequest struct {
	Target string `json:"target" validate:"required,max=128,excludesall=/\\"`
}

// Service turns operation requests into background jobs on a session's registry
type Service struct {
	runner    *jobs.Runner
	responder *jobs.Responder
	content   interfaces.ContentRepository
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewService creates an operations service
func NewService(runner *jobs.Runner, responder *jobs.Responder, content interfaces.ContentRepository, logger arbor.ILogger) *Service {
	return &Service{
		runner:    runner,
		responder: responder,
		content:   content,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Start launches kind on target unless a job for the same key is still running.
// On ErrAlreadyRunning the existing handle is returned so the caller can poll it.
func (s *Service) Start(registry *jobs.Registry, sessionID string, kind Kind, req StartRequest) (*jobs.Handle, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	work, err := s.Work(kind, req.Target)
	if err != nil {
		return nil, err
	}

	meta := models.JobMeta{
		Kind:      string(kind),
		Key:       Key(kind, req.Target),
		SessionID: sessionID,
		Target:    req.Target,
	}

	h, err := registry.TryStart(meta.Key, func() *jobs.Job {
		return s.runner.Start(meta, work)
	})
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			s.logger.Debug().
				Str("key", meta.Key).
				Str("session_id", sessionID).
				Msg("Operation already in progress")
		}
		return h, err
	}
	return h, nil
}

// Poll reports progress of kind on target. jobID, when set, must name the job
// that issued cursor.
func (s *Service) Poll(registry *jobs.Registry, kind Kind, target, jobID string, cursor uint64) (jobs.PollResult, error) {
	return s.responder.PollJob(registry, Key(kind, target), jobID, cursor)
}

// PollKey reports progress of the job stored under key
func (s *Service) PollKey(registry *jobs.Registry, key, jobID string, cursor uint64) (jobs.PollResult, error) {
	return s.responder.PollJob(registry, key, jobID, cursor)
}

// Work builds the job body for kind. Publishing is a chain: links are checked
// first and the publish stage receives the check result.
func (s *Service) Work(kind Kind, target string) (jobs.Work, error) {
	switch kind {
	case KindExportModule:
		return func(ctx context.Context, p *jobs.Progress) (interface{}, error) {
			return s.content.ExportModule(ctx, target, p)
		}, nil

	case KindDeleteModule:
		return func(ctx context.Context, p *jobs.Progress) (interface{}, error) {
			return s.content.DeleteModule(ctx, target, p)
		}, nil

	case KindPublishProject:
		return jobs.Chain(
			"check links",
			func(ctx context.Context, p *jobs.Progress) (*models.LinkCheckResult, error) {
				return s.content.CheckLinks(ctx, target, p)
			},
			"publish",
			func(ctx context.Context, p *jobs.Progress, links *models.LinkCheckResult) (*models.PublishResult, error) {
				return s.content.PublishProject(ctx, target, links, p)
			},
		), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Service implements EventService interface with pub/sub pattern.
// Publish is asynchronous but ordered: one dispatcher goroutine delivers
// events in the order they were published, handlers called one at a time.
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	logger      arbor.ILogger

	queueMu   sync.Mutex
	queue     []pendingEvent
	closed    bool
	wake      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type pendingEvent struct {
	ctx      context.Context
	event    interfaces.Event
	handlers []interfaces.EventHandler
}

// NewService creates a new event service and starts its dispatcher
func NewService(logger arbor.ILogger) interfaces.EventService {
	s := &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
		wake:        make(chan struct{}, 1),
		stopped:     make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handlers := s.subscribers[eventType]
	out := make([]interfaces.EventHandler, len(handlers))
	copy(out, handlers)
	return out
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	// job_progress fires once per chunk; keep it out of info logs
	if event.Type != interfaces.EventJobProgress {
		s.logger.Debug().
			Str("event_type", string(event.Type)).
			Int("subscriber_count", len(handlers)).
			Msg("Publishing event")
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.closed {
		return nil
	}
	s.queue = append(s.queue, pendingEvent{ctx: ctx, event: event, handlers: handlers})
	select {
	case s.wake <- struct{}{}:
	default:
	}

	return nil
}

// dispatch delivers queued events in order until the service is closed and
// the queue is empty
func (s *Service) dispatch() {
	defer close(s.stopped)
	for range s.wake {
		s.drain()
	}
	s.drain()
}

func (s *Service) drain() {
	for {
		s.queueMu.Lock()
		batch := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, pending := range batch {
			for _, h := range pending.handlers {
				s.deliver(pending.ctx, pending.event, h)
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, event interfaces.Event, h interfaces.EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("event_type", string(event.Type)).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.PanicStack()).
				Msg("Event handler panicked")
		}
	}()
	if err := h(ctx, event); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("Event handler failed")
	}
}

// PublishSync sends an event to all subscribers and waits for them to return
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event synchronously")

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errChan <- fmt.Errorf("event handler panicked: %v", r)
				}
			}()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors: %w", len(errs), errors.Join(errs...))
	}

	return nil
}

// Close drops all subscribers, delivers events already queued and stops the
// dispatcher. Events published afterwards are discarded.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
		s.mu.Unlock()

		s.queueMu.Lock()
		s.closed = true
		close(s.wake)
		s.queueMu.Unlock()

		<-s.stopped
		s.logger.Info().Msg("Event service closed")
	})
	return nil
}

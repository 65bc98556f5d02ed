package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs job lifecycle events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		var jobID, key, sessionID, errText string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			jobID, _ = payload["job_id"].(string)
			key, _ = payload["key"].(string)
			sessionID, _ = payload["session_id"].(string)
			errText, _ = payload["error"].(string)
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if jobID != "" {
			logEvent = logEvent.Str("job_id", jobID)
		}
		if key != "" {
			logEvent = logEvent.Str("key", key)
		}
		if sessionID != "" {
			logEvent = logEvent.Str("session_id", sessionID)
		}
		if errText != "" {
			logEvent = logEvent.Str("error", errText)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// LifecycleEvents are the event types worth a log line. job_progress is excluded.
var LifecycleEvents = []interfaces.EventType{
	interfaces.EventJobStarted,
	interfaces.EventJobStage,
	interfaces.EventJobCompleted,
	interfaces.EventJobFailed,
	interfaces.EventJobAcknowledged,
	interfaces.EventSessionExpired,
}

// SubscribeLoggerToLifecycleEvents subscribes the logger to every lifecycle event type
func SubscribeLoggerToLifecycleEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range LifecycleEvents {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(LifecycleEvents)).
		Msg("Logger subscribed to lifecycle events")

	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/models"
	"github.com/noah-isme/tutor-connect-api/pkg/jobs"
)

const sessionChannelPrefix = "session_updates:"

// SessionChannel names the pub/sub channel carrying a student's session events.
func SessionChannel(studentID string) string {
	return sessionChannelPrefix + studentID
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type jobQueue interface {
	Register(jobType string, handler jobs.Handler)
	Enqueue(job jobs.Job) error
}

// SessionEvents fans session events out to the realtime channel and the notifier
// through the background job queue.
type SessionEvents struct {
	queue     jobQueue
	publisher channelPublisher
	notifier  Notifier
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSessionEvents wires event handlers onto the queue.
func NewSessionEvents(queue jobQueue, publisher channelPublisher, notifier Notifier, metrics *MetricsService, logger *zap.Logger) *SessionEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &SessionEvents{queue: queue, publisher: publisher, notifier: notifier, metrics: metrics, logger: logger}
	for _, eventType := range []string{models.EventSessionScheduled, models.EventSessionStatusChanged, models.EventSessionFeedback} {
		queue.Register(eventType, e.handle)
	}
	return e
}

// Publish enqueues the event. Delivery failures are logged, never returned.
func (e *SessionEvents) Publish(_ context.Context, event models.SessionEvent) {
	job := jobs.Job{ID: uuid.NewString(), Type: event.Type, Payload: event}
	if err := e.queue.Enqueue(job); err != nil {
		e.logger.Warn("failed to enqueue session event",
			zap.String("type", event.Type),
			zap.String("session_id", event.SessionID),
			zap.Error(err),
		)
	}
}

func (e *SessionEvents) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.SessionEvent)
	if !ok {
		e.logger.Error("unexpected session event payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	err := e.deliver(ctx, event)
	e.metrics.RecordJob(job.Type, err)
	return err
}

func (e *SessionEvents) deliver(ctx context.Context, event models.SessionEvent) error {
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, SessionChannel(event.StudentID), event); err != nil {
			return fmt.Errorf("publish session event: %w", err)
		}
	}
	if event.Type == models.EventSessionScheduled && e.notifier != nil {
		if err := e.notifier.SessionScheduled(ctx, event); err != nil {
			return fmt.Errorf("notify session scheduled: %w", err)
		}
	}
	return nil
}

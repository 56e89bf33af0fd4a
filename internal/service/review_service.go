package service

import (
	"context"
	"time"

	"safebot-be/internal/pkg/logger"
	"safebot-be/pkg/events"
)

const publishTimeout = 3 * time.Second

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IReviewService interface {
	Publish(ctx context.Context, reviews []events.BaseEvent)
}

type reviewService struct {
	publisher EventPublisher
	logger    logger.ILogger
}

// NewReviewService logs every review event and forwards it to publisher when
// one is configured.
func NewReviewService(publisher EventPublisher, logger logger.ILogger) IReviewService {
	return &reviewService{publisher: publisher, logger: logger}
}

// Publish never fails the turn: broker errors are logged.
func (s *reviewService) Publish(ctx context.Context, reviews []events.BaseEvent) {
	for _, ev := range reviews {
		s.logger.Warn("SafetyReview", ev.EventType(), ev.Payload())

		if s.publisher == nil {
			continue
		}
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := s.publisher.Publish(pubCtx, ev)
		cancel()
		if err != nil {
			s.logger.Error("SafetyReview", "Failed to publish review event", map[string]interface{}{
				"type":      ev.EventType(),
				"thread_id": ev.Payload()["thread_id"],
				"error":     err.Error(),
			})
		}
	}
}

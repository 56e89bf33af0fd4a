package service

import (
	"context"
	"errors"
	"fmt"

	"safebot-be/internal/dto"
	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/repository/contract"
	"safebot-be/pkg/rag/executor"
	"safebot-be/pkg/rag/session"
)

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
}

type chatService struct {
	sessions *session.Manager
	pipeline *executor.Pipeline
	reviews  IReviewService
	logger   logger.ILogger
}

func NewChatService(
	sessions *session.Manager,
	pipeline *executor.Pipeline,
	reviews IReviewService,
	logger logger.ILogger,
) IChatService {
	return &chatService{
		sessions: sessions,
		pipeline: pipeline,
		reviews:  reviews,
		logger:   logger,
	}
}

// maxTurnAttempts bounds how often a turn is re-run after losing a save race
// to another replica.
const maxTurnAttempts = 3

// Chat runs one turn for req.ThreadId. Turns on the same thread are
// serialized; the state is committed before the reply is returned.
func (s *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	unlock, err := s.sessions.Lock(ctx, req.ThreadId)
	if err != nil {
		return nil, fmt.Errorf("waiting for thread %s: %w", req.ThreadId, err)
	}
	defer unlock()

	var turn *executor.Turn
	for attempt := 1; ; attempt++ {
		turn, err = s.runTurn(ctx, req)
		if err == nil {
			break
		}
		if !errors.Is(err, contract.ErrConversationConflict) || attempt == maxTurnAttempts {
			if errors.Is(err, contract.ErrHistoryRegression) {
				s.logger.Error("ChatService", "Conversation save refused", map[string]interface{}{
					"thread_id": req.ThreadId,
					"attempts":  attempt,
					"error":     err.Error(),
				})
			}
			return nil, err
		}
		s.logger.Warn("ChatService", "Thread saved elsewhere, re-running turn", map[string]interface{}{
			"thread_id": req.ThreadId,
			"attempt":   attempt,
		})
	}

	s.reviews.Publish(ctx, turn.Reviews)

	s.logger.Info("ChatService", "Turn completed", map[string]interface{}{
		"thread_id": req.ThreadId,
		"outcome":   turn.Outcome,
		"role":      turn.Profile.Role,
		"risk":      turn.Profile.Risk,
		"context":   turn.Context.Status,
		"states":    len(turn.Visited),
	})
	return &dto.ChatResponse{Reply: turn.Reply}, nil
}

// runTurn loads the thread, runs the pipeline on it and saves the result.
func (s *chatService) runTurn(ctx context.Context, req *dto.ChatRequest) (*executor.Turn, error) {
	conv, err := s.sessions.LoadOrCreate(ctx, req.ThreadId)
	if err != nil {
		return nil, err
	}

	turn := executor.NewTurn(conv, req.Message, s.sessions.Now())
	if err := s.pipeline.Run(ctx, turn); err != nil {
		if turn.Reply == "" {
			return nil, err
		}
		s.logger.Warn("ChatService", "Turn answered with safety reply", map[string]interface{}{
			"thread_id": req.ThreadId,
			"error":     err.Error(),
		})
	}

	if err := s.sessions.Save(ctx, turn.Conversation); err != nil {
		return nil, err
	}
	return turn, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/gamelogic"
)

// BoardService serves cached boards and validates client moves
type BoardService struct {
	engine *gamelogic.Engine
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewBoardService creates a new board service
func NewBoardService(engine *gamelogic.Engine, cache Cache, ttl time.Duration, logger *slog.Logger) *BoardService {
	return &BoardService{
		engine: engine,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// GetBoard returns the student's board, generating it on a cache miss
func (s *BoardService) GetBoard(ctx context.Context, studentID string) (*domain.BoardConfig, error) {
	key := boardCacheKey(studentID)

	var cached domain.BoardConfig
	ok, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("board cache read failed", "student_id", studentID, "error", err)
	} else if ok {
		return &cached, nil
	}

	board, err := s.engine.GenerateBoardConfig(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("generating board: %w", err)
	}

	if err := s.cache.Set(ctx, key, board, s.ttl); err != nil {
		s.logger.Warn("board cache write failed", "student_id", studentID, "error", err)
	}
	return board, nil
}

// ValidateMovement checks a client's claimed move against the stored position
func (s *BoardService) ValidateMovement(ctx context.Context, studentID string, req domain.MoveRequest) (*domain.MovementResult, error) {
	return s.engine.ValidateMovement(ctx, studentID, req.ClaimedPosition, req.ClaimedSteps)
}

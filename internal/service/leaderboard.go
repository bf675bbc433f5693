package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

// LeaderboardService provides cached class and global leaderboards
type LeaderboardService struct {
	repo   Repository
	cache  Cache
	config *config.LeaderboardConfig
	ttl    time.Duration
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	repo Repository,
	cache Cache,
	cfg *config.LeaderboardConfig,
	ttl time.Duration,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		repo:   repo,
		cache:  cache,
		config: cfg,
		ttl:    ttl,
		logger: logger,
	}
}

// normalize clamps the limit into the configured range
func (s *LeaderboardService) normalize(q domain.LeaderboardQuery) domain.LeaderboardQuery {
	if q.Limit <= 0 {
		q.Limit = s.config.DefaultLimit
	}
	if q.Limit > s.config.MaxLimit {
		q.Limit = s.config.MaxLimit
	}
	if q.Scope == domain.LeaderboardGlobal {
		q.ClassID = ""
	}
	return q
}

// Get returns a leaderboard, served from cache when possible
func (s *LeaderboardService) Get(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	q = s.normalize(q)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var cached []domain.LeaderboardEntry
	ok, err := s.cache.Get(ctx, leaderboardCacheKey(q), &cached)
	if err != nil {
		s.logger.Warn("leaderboard cache read failed", "scope", q.Scope, "class_id", q.ClassID, "error", err)
	} else if ok {
		return cached, nil
	}

	return s.load(ctx, q)
}

// Refresh recomputes a leaderboard from the store and re-caches it
func (s *LeaderboardService) Refresh(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	q = s.normalize(q)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, q)
}

func (s *LeaderboardService) load(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	entries, err := s.repo.ListLeaderboard(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	if err := s.cache.Set(ctx, leaderboardCacheKey(q), entries, s.ttl); err != nil {
		s.logger.Warn("leaderboard cache write failed", "scope", q.Scope, "class_id", q.ClassID, "error", err)
	}
	return entries, nil
}

// ClassIDs returns every class with at least one registered student
func (s *LeaderboardService) ClassIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListClassIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	return ids, nil
}

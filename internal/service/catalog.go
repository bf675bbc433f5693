package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

const defaultAuditLimit = 100

// CatalogService manages the catalogue of books, students and achievement
// definitions, and exposes the audit trail to administrators
type CatalogService struct {
	repo            Repository
	cache           Cache
	achievementsTTL time.Duration
	logger          *slog.Logger
}

// NewCatalogService creates a new catalogue service
func NewCatalogService(repo Repository, cache Cache, achievementsTTL time.Duration, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:            repo,
		cache:           cache,
		achievementsTTL: achievementsTTL,
		logger:          logger,
	}
}

// CreateBook validates and stores a new book
func (s *CatalogService) CreateBook(ctx context.Context, req domain.CreateBookRequest) (*domain.Book, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	book := req.ToBook(uuid.NewString())
	if err := s.repo.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	s.logger.Info("book created", "book_id", book.ID, "title", book.Title)
	return &book, nil
}

// GetBook returns a book by id
func (s *CatalogService) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.repo.GetBook(ctx, bookID)
}

// RegisterStudent enrols a student and creates their initial game state
func (s *CatalogService) RegisterStudent(ctx context.Context, req domain.RegisterStudentRequest) (*domain.GameState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	state := domain.NewGameState(uuid.NewString(), req.StudentID)
	if err := s.repo.RegisterStudent(ctx, req.Profile(), state); err != nil {
		return nil, fmt.Errorf("registering student: %w", err)
	}

	if err := s.cache.InvalidatePattern(ctx, leaderboardPattern); err != nil {
		s.logger.Warn("failed to invalidate leaderboards", "error", err)
	}

	s.logger.Info("student registered", "student_id", req.StudentID, "class_id", req.ClassID)
	return &state, nil
}

// CreateAchievement validates the criteria document and stores the definition
func (s *CatalogService) CreateAchievement(ctx context.Context, req domain.CreateAchievementRequest) (*domain.Achievement, error) {
	achievement, err := req.ToAchievement()
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateAchievement(ctx, achievement); err != nil {
		return nil, fmt.Errorf("creating achievement: %w", err)
	}

	if err := s.cache.Delete(ctx, achievementsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate achievements", "error", err)
	}

	s.logger.Info("achievement created", "achievement_id", achievement.ID, "tier", achievement.Tier)
	return &achievement, nil
}

// ListAchievements returns every achievement definition
func (s *CatalogService) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	var cached []domain.Achievement
	ok, err := s.cache.Get(ctx, achievementsCacheKey, &cached)
	if err != nil {
		s.logger.Warn("achievements cache read failed", "error", err)
	} else if ok {
		return cached, nil
	}

	achievements, err := s.repo.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}

	if err := s.cache.Set(ctx, achievementsCacheKey, achievements, s.achievementsTTL); err != nil {
		s.logger.Warn("achievements cache write failed", "error", err)
	}
	return achievements, nil
}

// StudentAchievements splits the achievement catalogue into what the student
// has unlocked and what is still locked, both in catalogue order
func (s *CatalogService) StudentAchievements(ctx context.Context, studentID string) (*domain.StudentAchievements, error) {
	if studentID == "" {
		return nil, domain.NewValidationError("student_id", "is required")
	}

	state, err := s.repo.GetGameState(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("getting game state: %w", err)
	}
	all, err := s.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.StudentAchievements{
		Unlocked: []domain.Achievement{},
		Locked:   []domain.Achievement{},
		Total:    len(all),
	}
	for _, a := range all {
		if state.HasAchievement(a.ID) {
			result.Unlocked = append(result.Unlocked, a)
		} else {
			result.Locked = append(result.Locked, a)
		}
	}
	return result, nil
}

// AuditLogs returns one page of the audit trail, newest first.
// A zero limit uses the default page size.
func (s *CatalogService) AuditLogs(ctx context.Context, filter domain.AuditLogFilter) (*domain.AuditLogPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	filter.Offset = max(filter.Offset, 0)

	logs, total, err := s.repo.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	return &domain.AuditLogPage{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Ping checks the underlying store
func (s *CatalogService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

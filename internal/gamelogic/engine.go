// Package gamelogic is the server-authoritative reward and anti-cheat engine.
//
// Every reward, streak, board and movement decision is recomputed here from
// durable state read through Store. Client-supplied scores are never trusted.
// The engine takes no locks. Streak updates are a compare-and-set through
// Store.SaveStreak and re-read on conflict; other GameState mutations rely on
// the store's atomic increments.
package gamelogic

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lukudiplomi/reading-board/internal/domain"
)

// Store is the persistence the engine reads from and writes to.
// Lookups of missing records return the matching domain.Err*NotFound error.
type Store interface {
	GetBook(ctx context.Context, bookID string) (*domain.Book, error)
	GetStudentProfile(ctx context.Context, studentID string) (*domain.StudentProfile, error)
	GetGameState(ctx context.Context, studentID string) (*domain.GameState, error)
	ListReadingHistory(ctx context.Context, filter domain.ReadingLogFilter) ([]domain.ReadingHistoryEntry, error)
	CountReadingLogs(ctx context.Context, filter domain.ReadingLogFilter) (int, error)
	ListAchievements(ctx context.Context) ([]domain.Achievement, error)
	// SaveStreak fails with domain.ErrStreakConflict when the stored last log
	// time no longer equals update.Prev.
	SaveStreak(ctx context.Context, update domain.StreakUpdate) (*domain.GameState, error)
	AppendAuditLog(ctx context.Context, entry domain.AuditLog) error
}

// Engine evaluates the game rules against a Store
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	random RandomSource
	newID  func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRandom replaces the source used for cosmetic challenge tiles
func WithRandom(r RandomSource) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// NewEngine creates a new game logic engine
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
		random: GlobalRandom(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time
func (e *Engine) Now() time.Time {
	return e.now()
}

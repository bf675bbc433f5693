package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/gamelogic"
)

// Repository is the full storage contract the services need.
// Both postgres.Repository and memory.Store implement it.
type Repository interface {
	gamelogic.Store

	Ping(ctx context.Context) error
	CreateBook(ctx context.Context, book domain.Book) error
	RegisterStudent(ctx context.Context, profile domain.StudentProfile, state domain.GameState) error
	CreateAchievement(ctx context.Context, achievement domain.Achievement) error
	CreateReadingLog(ctx context.Context, log domain.ReadingLog) error
	GetReadingLog(ctx context.Context, logID string) (*domain.ReadingLog, error)
	FindReadingLogByCompletion(ctx context.Context, completionID string) (*domain.ReadingLog, error)
	CreditReadingLog(ctx context.Context, logID string, delta domain.RewardDelta) (log *domain.ReadingLog, credited bool, err error)
	SetReadingLogVerification(ctx context.Context, logID string, approved bool, at time.Time) (*domain.ReadingLog, error)
	ListPendingReadingLogs(ctx context.Context, classID string, limit int) ([]domain.ReadingHistoryEntry, error)
	ListAuditLogs(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, int, error)
	ListLeaderboard(ctx context.Context, q domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error)
	ListClassIDs(ctx context.Context) ([]string, error)
}

// Cache is a best-effort JSON cache. Callers log its errors and carry on.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	InvalidatePattern(ctx context.Context, pattern string) error
}

// NoopCache never stores anything. It is used when Redis is disabled.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NoopCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, ...string) error { return nil }
func (NoopCache) InvalidatePattern(context.Context, string) error { return nil }

// Cache keys
const (
	achievementsCacheKey = "achievements:all"
	leaderboardPattern   = "leaderboard:*"
)

func boardCacheKey(studentID string) string {
	return "board:" + studentID
}

func leaderboardCacheKey(q domain.LeaderboardQuery) string {
	scope := "global"
	if q.Scope == domain.LeaderboardClass {
		scope = q.ClassID
	}
	return fmt.Sprintf("leaderboard:%s:%s:%d", q.Scope, scope, q.Limit)
}

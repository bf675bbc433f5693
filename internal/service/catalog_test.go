package service

import (
	"testing"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Books(t *testing.T) {
	h := newHarness(t, NoopCache{})

	book := h.book(t, "fantasy", 120, 1.3)
	assert.NotEmpty(t, book.ID)

	got, err := h.catalog.GetBook(h.ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "fantasy", got.Genre)

	_, err = h.catalog.CreateBook(h.ctx, domain.CreateBookRequest{Title: "No pages", Genre: "x", DifficultyScore: 1})
	assert.True(t, domain.IsValidationError(err))

	_, err = h.catalog.GetBook(h.ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestCatalog_RegisterStudent(t *testing.T) {
	h := newHarness(t, NoopCache{})

	state, err := h.catalog.RegisterStudent(h.ctx, domain.RegisterStudentRequest{StudentID: "s1", ClassID: "3A", GradeLevel: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, state.Level)
	assert.Zero(t, state.BoardPosition)
	assert.Empty(t, state.UnlockedAchievements)

	_, err = h.catalog.RegisterStudent(h.ctx, domain.RegisterStudentRequest{StudentID: "s1", ClassID: "3A", GradeLevel: 3})
	assert.True(t, domain.IsConflictError(err))

	_, err = h.catalog.RegisterStudent(h.ctx, domain.RegisterStudentRequest{StudentID: "s2", ClassID: "3A"})
	assert.True(t, domain.IsValidationError(err))
}

func TestCatalog_Achievements(t *testing.T) {
	cache := newMapCache()
	h := newHarness(t, cache)

	_, err := h.catalog.CreateAchievement(h.ctx, domain.CreateAchievementRequest{
		ID: "streak-3", Name: "Three in a row", Tier: 1, Criteria: []byte(`{"streak_days": 3}`),
	})
	require.NoError(t, err)

	list, err := h.catalog.ListAchievements(h.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, cache.has(achievementsCacheKey))

	_, err = h.catalog.CreateAchievement(h.ctx, domain.CreateAchievementRequest{
		ID: "bookworm", Name: "Bookworm", Tier: 0, Criteria: []byte(`{"total_books": 10}`),
	})
	require.NoError(t, err)
	assert.False(t, cache.has(achievementsCacheKey))

	list, err = h.catalog.ListAchievements(h.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bookworm", list[0].ID)
	require.NotNil(t, list[1].Criteria.StreakDays)
	assert.Equal(t, 3, *list[1].Criteria.StreakDays)

	_, err = h.catalog.CreateAchievement(h.ctx, domain.CreateAchievementRequest{
		ID: "bookworm", Name: "Again", Criteria: []byte(`{"total_books": 1}`),
	})
	assert.True(t, domain.IsConflictError(err))

	_, err = h.catalog.CreateAchievement(h.ctx, domain.CreateAchievementRequest{
		ID: "bad", Name: "Bad", Criteria: []byte(`{"books_per_hour": 3}`),
	})
	assert.True(t, domain.IsValidationError(err))
}

func TestCatalog_StudentAchievements(t *testing.T) {
	h := newHarness(t, newMapCache())
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)
	for _, req := range []domain.CreateAchievementRequest{
		{ID: "hundred-pages", Name: "Hundred pages", Criteria: []byte(`{"total_pages": 100}`)},
		{ID: "streak-7", Name: "A week", Tier: 2, Criteria: []byte(`{"streak_days": 7}`)},
	} {
		_, err := h.catalog.CreateAchievement(h.ctx, req)
		require.NoError(t, err)
	}

	got, err := h.catalog.StudentAchievements(h.ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Total)
	assert.Empty(t, got.Unlocked)
	assert.Len(t, got.Locked, 2)

	_, err = h.reading.LogBook(h.ctx, completion("s1", book.ID, 100))
	require.NoError(t, err)

	got, err = h.catalog.StudentAchievements(h.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Unlocked, 1)
	assert.Equal(t, "hundred-pages", got.Unlocked[0].ID)
	require.Len(t, got.Locked, 1)
	assert.Equal(t, "streak-7", got.Locked[0].ID)

	_, err = h.catalog.StudentAchievements(h.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrGameStateNotFound)
}

func TestCatalog_AuditLogs(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	var logIDs []string
	for i := 0; i < 3; i++ {
		result, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 50))
		require.NoError(t, err)
		logIDs = append(logIDs, result.ReadingLog.ID)
	}
	for i, id := range logIDs {
		h.clock.Advance(time.Minute)
		_, err := h.reading.VerifyReadingLog(h.ctx, id, domain.VerifyReadingRequest{TeacherID: "t1", Approved: i != 1})
		require.NoError(t, err)
	}
	_, err := h.boards.ValidateMovement(h.ctx, "s1", domain.MoveRequest{ClaimedPosition: 999, ClaimedSteps: 1})
	require.NoError(t, err)

	page, err := h.catalog.AuditLogs(h.ctx, domain.AuditLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, defaultAuditLimit, page.Limit)
	require.Len(t, page.Logs, 4)
	assert.Equal(t, domain.AuditSuspiciousMovement, page.Logs[0].Action)

	page, err = h.catalog.AuditLogs(h.ctx, domain.AuditLogFilter{Action: domain.AuditVerifyReadingLog, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "ReadingLog:"+logIDs[2], page.Logs[0].Target)

	page, err = h.catalog.AuditLogs(h.ctx, domain.AuditLogFilter{ActorID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = h.catalog.AuditLogs(h.ctx, domain.AuditLogFilter{ActorID: "nobody", Offset: 5})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Logs)
}

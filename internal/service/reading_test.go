package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
	"github.com/lukudiplomi/reading-board/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(studentID, bookID string, pages int) domain.BookCompletion {
	return domain.BookCompletion{StudentID: studentID, BookID: bookID, PagesRead: pages}
}

func TestLogBook_FirstLogStartsTheClock(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	result, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 100))
	require.NoError(t, err)

	// The new log is already in the history, so its genre counts.
	assert.InDelta(t, 1.1, result.Reward.Bonuses.Diversity, 1e-9)
	assert.Equal(t, 11, result.Reward.Steps)
	assert.Equal(t, 200, result.Reward.XP)

	assert.Equal(t, 11, result.GameState.BoardPosition)
	assert.Equal(t, 200, result.GameState.XP)
	assert.Equal(t, 0, result.GameState.Streak)
	require.NotNil(t, result.GameState.LastBookLoggedAt)
	assert.True(t, result.GameState.LastBookLoggedAt.Equal(testStart))

	stored, err := h.store.GetReadingLog(h.ctx, result.ReadingLog.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, stored.PointsAwarded)
	assert.Equal(t, 11, stored.StepsAwarded)
	assert.Len(t, stored.MetadataHash, 64)
	assert.False(t, stored.VerifiedByTeacher)
}

func TestLogBook_StreakProgression(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	_, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 50))
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	second, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 50))
	require.NoError(t, err)
	assert.Equal(t, 1, second.GameState.Streak)

	h.clock.Advance(47 * time.Hour)
	third, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 50))
	require.NoError(t, err)
	assert.Equal(t, 2, third.GameState.Streak)
	assert.Equal(t, 2, third.GameState.LongestStreak)

	h.clock.Advance(72 * time.Hour)
	fourth, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 50))
	require.NoError(t, err)
	assert.Equal(t, 1, fourth.GameState.Streak)
	assert.Equal(t, 2, fourth.GameState.LongestStreak)
	assert.True(t, fourth.GameState.LastBookLoggedAt.Equal(h.clock.Now()))
}

func TestLogBook_StreakFeedsTheNextReward(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	for i := 0; i < 3; i++ {
		_, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 10))
		require.NoError(t, err)
		h.clock.Advance(time.Hour)
	}
	state, err := h.reading.GetGameState(h.ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 2, state.Streak)

	preview, err := h.reading.RewardPreview(h.ctx, "s1", book.ID, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, preview.Bonuses.Streak, 1e-9)
	// 200 * (1 + 2*0.1)
	assert.Equal(t, 240, preview.XP)
}

func TestLogBook_RejectsImplausibleClaims(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	rating := 9
	bad := []domain.BookCompletion{
		completion("s1", book.ID, 301),
		completion("s1", book.ID, 0),
		{StudentID: "s1", BookID: book.ID, PagesRead: 10, Rating: &rating},
		{StudentID: "s1", BookID: book.ID, PagesRead: 10, ReviewText: "meh"},
	}
	for _, c := range bad {
		_, err := h.reading.LogBook(h.ctx, c)
		assert.True(t, domain.IsValidationError(err), "%+v", c)
	}

	count, err := h.store.CountReadingLogs(h.ctx, domain.ReadingLogFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLogBook_UnknownBookOrStudent(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	_, err := h.reading.LogBook(h.ctx, completion("s1", "missing", 10))
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	_, err = h.reading.LogBook(h.ctx, completion("ghost", book.ID, 10))
	assert.True(t, domain.IsNotFoundError(err))

	count, err := h.store.CountReadingLogs(h.ctx, domain.ReadingLogFilter{StudentID: "ghost"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLogBook_UnlocksAchievementOnce(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)
	_, err := h.catalog.CreateAchievement(h.ctx, domain.CreateAchievementRequest{
		ID:       "hundred-pages",
		Name:     "Hundred pages",
		Criteria: []byte(`{"total_pages": 100}`),
	})
	require.NoError(t, err)

	first, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 120))
	require.NoError(t, err)
	require.Len(t, first.Reward.Achievements, 1)
	assert.Equal(t, []string{"hundred-pages"}, first.GameState.UnlockedAchievements)

	second, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 120))
	require.NoError(t, err)
	assert.Empty(t, second.Reward.Achievements)
	assert.Equal(t, []string{"hundred-pages"}, second.GameState.UnlockedAchievements)
}

func TestLogBook_ConcurrentLogsForOneStudentAllCount(t *testing.T) {
	h := newHarness(t, NoopCache{})
	books := []*domain.Book{
		h.book(t, "fantasy", 200, 1.0),
		h.book(t, "poetry", 200, 1.4),
		h.book(t, "science", 200, 0.8),
	}
	h.student(t, "s1", "3A", 3)

	const n = 24
	results := make([]*domain.BookLogResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := h.reading.LogBook(h.ctx, completion("s1", books[i%len(books)].ID, 40+i))
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	steps, xp := 0, 0
	for _, r := range results {
		require.NotNil(t, r)
		steps += r.Reward.Steps
		xp += r.Reward.XP
	}

	state, err := h.reading.GetGameState(h.ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, steps, state.BoardPosition)
	assert.Equal(t, xp, state.XP)
	assert.Equal(t, domain.LevelForXP(xp), state.Level)
	// Same instant: the first log starts the clock, every later one extends the streak.
	assert.Equal(t, n-1, state.Streak)

	count, err := h.store.CountReadingLogs(h.ctx, domain.ReadingLogFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, n, count)
	assert.Zero(t, h.reading.locks.Len())
}

var errStoreBlip = errors.New("connection reset")

// flakyStore fails the next n reward credits or streak saves
type flakyStore struct {
	*memory.Store
	mu          sync.Mutex
	failCredits int
	failStreaks int
}

func (s *flakyStore) CreditReadingLog(ctx context.Context, logID string, delta domain.RewardDelta) (*domain.ReadingLog, bool, error) {
	s.mu.Lock()
	fail := s.failCredits > 0
	if fail {
		s.failCredits--
	}
	s.mu.Unlock()
	if fail {
		return nil, false, errStoreBlip
	}
	return s.Store.CreditReadingLog(ctx, logID, delta)
}

func (s *flakyStore) SaveStreak(ctx context.Context, update domain.StreakUpdate) (*domain.GameState, error) {
	s.mu.Lock()
	fail := s.failStreaks > 0
	if fail {
		s.failStreaks--
	}
	s.mu.Unlock()
	if fail {
		return nil, errStoreBlip
	}
	return s.Store.SaveStreak(ctx, update)
}

func TestLogBook_RetryAfterPartialFailureRewardsOnce(t *testing.T) {
	tests := []struct {
		name        string
		failCredits int
		failStreaks int
		xpAfterFail int
	}{
		{"credit failed", 1, 0, 0},
		{"streak failed after credit", 0, 1, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyStore{failCredits: tt.failCredits, failStreaks: tt.failStreaks}
			h := newHarnessWith(t, NoopCache{}, func(store *memory.Store) Repository {
				flaky.Store = store
				return flaky
			})
			book := h.book(t, "fantasy", 200, 1.0)
			h.student(t, "s1", "3A", 3)

			c := completion("s1", book.ID, 100)
			c.CompletionID = "events/0/42"

			_, err := h.reading.LogBook(h.ctx, c)
			require.ErrorIs(t, err, errStoreBlip)
			state, err := h.store.GetGameState(h.ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, tt.xpAfterFail, state.XP)

			result, err := h.reading.LogBook(h.ctx, c)
			require.NoError(t, err)
			assert.Equal(t, 200, result.Reward.XP)
			assert.Equal(t, 11, result.Reward.Steps)
			assert.Equal(t, 200, result.GameState.XP)
			assert.Equal(t, 11, result.GameState.BoardPosition)
			assert.Equal(t, 0, result.GameState.Streak)
			assert.Equal(t, "events/0/42", result.ReadingLog.CompletionID)

			// A third delivery changes nothing.
			again, err := h.reading.LogBook(h.ctx, c)
			require.NoError(t, err)
			assert.Equal(t, result.ReadingLog.ID, again.ReadingLog.ID)
			assert.Equal(t, 200, again.GameState.XP)
			assert.Equal(t, 0, again.GameState.Streak)

			count, err := h.store.CountReadingLogs(h.ctx, domain.ReadingLogFilter{StudentID: "s1"})
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			// The next real completion still extends the streak once.
			h.clock.Advance(time.Hour)
			next, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 100))
			require.NoError(t, err)
			assert.Equal(t, 1, next.GameState.Streak)
		})
	}
}

func TestLogBook_CompletionIDReusedForAnotherClaim(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)
	h.student(t, "s2", "3A", 3)

	c := completion("s1", book.ID, 100)
	c.CompletionID = "dup"
	_, err := h.reading.LogBook(h.ctx, c)
	require.NoError(t, err)

	c.StudentID = "s2"
	_, err = h.reading.LogBook(h.ctx, c)
	assert.True(t, domain.IsValidationError(err))

	state, err := h.reading.GetGameState(h.ctx, "s2")
	require.NoError(t, err)
	assert.Zero(t, state.XP)
}

func TestHistory_PagesNewestFirst(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 10+i))
		require.NoError(t, err)
		ids = append(ids, result.ReadingLog.ID)
		h.clock.Advance(time.Minute)
	}

	page, err := h.reading.History(h.ctx, "s1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, ids[2], page.Entries[0].Log.ID)
	assert.Equal(t, ids[1], page.Entries[1].Log.ID)
	assert.Equal(t, "fantasy", page.Entries[0].Book.Genre)

	page, err = h.reading.History(h.ctx, "s1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, ids[0], page.Entries[0].Log.ID)

	page, err = h.reading.History(h.ctx, "s1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultHistoryLimit, page.Limit)
	assert.Len(t, page.Entries, 3)

	_, err = h.reading.History(h.ctx, "ghost", 10, 0)
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)
}

func TestStats_CountsVerifiedLogsOnly(t *testing.T) {
	h := newHarness(t, NoopCache{})
	fantasy := h.book(t, "fantasy", 200, 1.0)
	poetry := h.book(t, "poetry", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	var logs []string
	for _, c := range []domain.BookCompletion{
		completion("s1", fantasy.ID, 100),
		completion("s1", poetry.ID, 80),
		completion("s1", fantasy.ID, 60),
	} {
		result, err := h.reading.LogBook(h.ctx, c)
		require.NoError(t, err)
		logs = append(logs, result.ReadingLog.ID)
	}
	for _, id := range logs[:2] {
		_, err := h.reading.VerifyReadingLog(h.ctx, id, domain.VerifyReadingRequest{TeacherID: "t1", Approved: true})
		require.NoError(t, err)
	}

	stats, err := h.reading.Stats(h.ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalBooksRead)
	assert.Equal(t, 180, stats.TotalPagesRead)
	assert.Equal(t, map[string]int{"fantasy": 1, "poetry": 1}, stats.GenreDistribution)

	state, err := h.reading.GetGameState(h.ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, state.XP, stats.XP)
	assert.Equal(t, state.Level, stats.Level)
	assert.Equal(t, state.BoardPosition, stats.BoardPosition)
	assert.Equal(t, state.Streak, stats.CurrentStreak)
	assert.Equal(t, state.LongestStreak, stats.LongestStreak)

	_, err = h.reading.Stats(h.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrGameStateNotFound)
}

func TestVerifyReadingLog(t *testing.T) {
	h := newHarness(t, NoopCache{})
	book := h.book(t, "fantasy", 200, 1.0)
	h.student(t, "s1", "3A", 3)

	approved, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 100))
	require.NoError(t, err)
	rejected, err := h.reading.LogBook(h.ctx, completion("s1", book.ID, 150))
	require.NoError(t, err)
	before, err := h.reading.GetGameState(h.ctx, "s1")
	require.NoError(t, err)

	pending, err := h.reading.PendingVerifications(h.ctx, "3A", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	log, err := h.reading.VerifyReadingLog(h.ctx, approved.ReadingLog.ID, domain.VerifyReadingRequest{TeacherID: "t1", Approved: true})
	require.NoError(t, err)
	assert.True(t, log.VerifiedByTeacher)
	require.NotNil(t, log.TeacherVerifiedAt)

	log, err = h.reading.VerifyReadingLog(h.ctx, rejected.ReadingLog.ID, domain.VerifyReadingRequest{TeacherID: "t1", Approved: false, Feedback: "too fast"})
	require.NoError(t, err)
	assert.False(t, log.VerifiedByTeacher)
	assert.Nil(t, log.TeacherVerifiedAt)

	audit := h.store.AuditLogs()
	require.Len(t, audit, 2)
	assert.Equal(t, domain.AuditVerifyReadingLog, audit[0].Action)
	assert.Equal(t, "t1", audit[0].ActorID)
	assert.Equal(t, "ReadingLog:"+approved.ReadingLog.ID, audit[0].Target)
	assert.Equal(t, domain.AuditRejectReadingLog, audit[1].Action)
	assert.Equal(t, "too fast", audit[1].Metadata["feedback"])
	assert.Equal(t, "s1", audit[1].Metadata["studentId"])

	// Granted rewards stay.
	after, err := h.reading.GetGameState(h.ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before.XP, after.XP)
	assert.Equal(t, before.BoardPosition, after.BoardPosition)

	pending, err = h.reading.PendingVerifications(h.ctx, "3A", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rejected.ReadingLog.ID, pending[0].Log.ID)
}

func TestVerifyReadingLog_Errors(t *testing.T) {
	h := newHarness(t, NoopCache{})

	_, err := h.reading.VerifyReadingLog(h.ctx, "log-1", domain.VerifyReadingRequest{Approved: true})
	assert.True(t, domain.IsValidationError(err))

	_, err = h.reading.VerifyReadingLog(h.ctx, "missing", domain.VerifyReadingRequest{TeacherID: "t1", Approved: true})
	assert.ErrorIs(t, err, domain.ErrReadingLogNotFound)

	_, err = h.reading.PendingVerifications(h.ctx, "", 10)
	assert.True(t, domain.IsValidationError(err))
}

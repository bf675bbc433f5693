package gamelogic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// maxStreakAttempts bounds the re-read loop when concurrent writers keep
// moving the last log time
const maxStreakAttempts = 16

// NextStreak derives the streak counters for a log at now.
// ok is false when the state has never recorded a log, in which case nothing changes.
func NextStreak(state domain.GameState, now time.Time) (streak, longest int, ok bool) {
	if state.LastBookLoggedAt == nil {
		return state.Streak, state.LongestStreak, false
	}

	streak = state.Streak
	if now.Sub(*state.LastBookLoggedAt) <= StreakWindow {
		streak++
	} else {
		streak = 1
	}
	return streak, max(state.LongestStreak, streak), true
}

// UpdateStreak advances or resets the student's streak and stamps the log time.
// It must run once per book completion; a second call inside the window
// increments again. A student who never logged a book is left untouched.
func (e *Engine) UpdateStreak(ctx context.Context, studentID string) (*domain.GameState, error) {
	return e.updateStreak(ctx, studentID, "")
}

// UpdateStreakForLog is UpdateStreak bound to one reading log: it counts that
// log at most once, however often it is called. The student's first log only
// starts the clock and leaves the counters at zero.
func (e *Engine) UpdateStreakForLog(ctx context.Context, studentID, logID string) (*domain.GameState, error) {
	if logID == "" {
		return nil, domain.NewValidationError("log_id", "is required")
	}
	return e.updateStreak(ctx, studentID, logID)
}

func (e *Engine) updateStreak(ctx context.Context, studentID, logID string) (*domain.GameState, error) {
	if studentID == "" {
		return nil, domain.NewValidationError("student_id", "is required")
	}

	for attempt := 1; attempt <= maxStreakAttempts; attempt++ {
		state, err := e.store.GetGameState(ctx, studentID)
		if err != nil {
			return nil, fmt.Errorf("getting game state: %w", err)
		}

		now := e.now()
		streak, longest, ok := NextStreak(*state, now)
		if !ok && logID == "" {
			return state, nil
		}

		updated, err := e.store.SaveStreak(ctx, domain.StreakUpdate{
			StudentID:     studentID,
			LogID:         logID,
			Prev:          state.LastBookLoggedAt,
			Streak:        streak,
			LongestStreak: longest,
			LoggedAt:      now,
		})
		if errors.Is(err, domain.ErrStreakConflict) {
			e.logger.Debug("streak changed concurrently, re-reading", "student_id", studentID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("saving streak: %w", err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("saving streak after %d attempts: %w", maxStreakAttempts, domain.ErrStreakConflict)
}

package gamelogic

import (
	"context"
	"fmt"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// EvalContext is the student snapshot achievements are evaluated against
type EvalContext struct {
	StudentID      string
	ReadingHistory []domain.ReadingHistoryEntry
	GameState      *domain.GameState
	NewBook        *domain.Book
}

// EvaluateCriteria reports whether every threshold present in c holds.
// total_books is answered by a fresh count of verified logs, not by the
// history in ec, and is only queried when the cheaper checks passed.
func (e *Engine) EvaluateCriteria(ctx context.Context, c domain.Criteria, ec EvalContext) (bool, error) {
	if c.BooksIn7Days != nil {
		cutoff := e.now().Add(-RecentBooksWindow)
		recent := 0
		for _, entry := range ec.ReadingHistory {
			if entry.Log.CreatedAt.After(cutoff) {
				recent++
			}
		}
		if recent < *c.BooksIn7Days {
			return false, nil
		}
	}

	if c.StreakDays != nil {
		if ec.GameState == nil || ec.GameState.Streak < *c.StreakDays {
			return false, nil
		}
	}

	if c.UniqueGenres != nil {
		if DistinctGenres(ec.ReadingHistory) < *c.UniqueGenres {
			return false, nil
		}
	}

	if c.TotalPages != nil {
		if TotalPages(ec.ReadingHistory) < *c.TotalPages {
			return false, nil
		}
	}

	if c.DifficultyMin != nil {
		avg, ok := AverageDifficulty(ec.ReadingHistory)
		if !ok || avg < *c.DifficultyMin {
			return false, nil
		}
	}

	if c.TotalBooks != nil {
		total, err := e.store.CountReadingLogs(ctx, domain.ReadingLogFilter{
			StudentID:    ec.StudentID,
			VerifiedOnly: true,
		})
		if err != nil {
			return false, fmt.Errorf("counting verified logs: %w", err)
		}
		if total < *c.TotalBooks {
			return false, nil
		}
	}

	return true, nil
}

// CheckAchievements returns every achievement the student newly qualifies for.
// Achievements already in the game state are never returned again.
func (e *Engine) CheckAchievements(ctx context.Context, ec EvalContext) ([]domain.Achievement, error) {
	achievements, err := e.store.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}

	unlocked := make([]domain.Achievement, 0)
	for _, achievement := range achievements {
		if ec.GameState != nil && ec.GameState.HasAchievement(achievement.ID) {
			continue
		}

		ok, err := e.EvaluateCriteria(ctx, achievement.Criteria, ec)
		if err != nil {
			return nil, fmt.Errorf("evaluating achievement %s: %w", achievement.ID, err)
		}
		if ok {
			unlocked = append(unlocked, achievement)
		}
	}
	return unlocked, nil
}

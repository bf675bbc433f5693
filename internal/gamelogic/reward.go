package gamelogic

import (
	"context"
	"fmt"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// RewardRequest identifies a book completion to be rewarded
type RewardRequest struct {
	BookID    string
	StudentID string
	PagesRead int
}

// Validate checks the request bounds
func (r RewardRequest) Validate() error {
	if r.BookID == "" {
		return domain.NewValidationError("book_id", "is required")
	}
	if r.StudentID == "" {
		return domain.NewValidationError("student_id", "is required")
	}
	if r.PagesRead <= 0 {
		return domain.NewValidationError("pages_read", "must be positive, got %d", r.PagesRead)
	}
	return nil
}

// CalculateReward computes steps, XP, bonuses and newly unlocked achievements
// for a book completion. It only reads: persisting the result is the caller's job.
func (e *Engine) CalculateReward(ctx context.Context, req RewardRequest) (*domain.RewardResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	book, err := e.store.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	profile, err := e.store.GetStudentProfile(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("getting student profile: %w", err)
	}
	state, err := e.store.GetGameState(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("getting game state: %w", err)
	}

	history, err := e.store.ListReadingHistory(ctx, domain.ReadingLogFilter{
		StudentID: req.StudentID,
		Limit:     RecentHistorySize,
	})
	if err != nil {
		return nil, fmt.Errorf("listing reading history: %w", err)
	}

	bonuses := domain.Bonuses{
		Difficulty: DifficultyMultiplier(book.DifficultyScore),
		Grade:      GradeBonus(*book, profile.GradeLevel),
		Streak:     StreakBonus(state.Streak),
		Diversity:  DiversityBonus(DistinctGenres(history)),
	}

	achievements, err := e.CheckAchievements(ctx, EvalContext{
		StudentID:      req.StudentID,
		ReadingHistory: history,
		GameState:      state,
		NewBook:        book,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.RewardResult{
		Steps:          Steps(req.PagesRead, bonuses),
		XP:             XP(req.PagesRead, bonuses, state.Streak),
		Achievements:   achievements,
		Bonuses:        bonuses,
		FormulaVersion: FormulaVersion,
	}

	e.logger.Debug("reward calculated",
		"student_id", req.StudentID,
		"book_id", req.BookID,
		"pages_read", req.PagesRead,
		"steps", result.Steps,
		"xp", result.XP,
		"achievements", len(achievements),
	)

	return result, nil
}

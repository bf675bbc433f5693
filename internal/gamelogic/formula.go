package gamelogic

import (
	"math"
	"time"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// FormulaVersion is stamped on rewards and boards. Bump it whenever any
// constant or rule below changes.
const FormulaVersion = "1.0"

// Reward formula
const (
	PagesPerStep            = 10
	MinDifficultyMultiplier = 0.5
	MaxDifficultyMultiplier = 2.0
	GradeBonusMultiplier    = 1.2
	StreakBonusPerDay       = 0.05
	MaxStreakBonus          = 1.5
	DiversityBonusPerGenre  = 0.1
	MaxDiversityBonus       = 1.5
	XPPerPage               = 2
	XPStreakBonusPerDay     = 0.1

	// RecentHistorySize is how many recent logs feed the diversity bonus and achievements
	RecentHistorySize = 10
)

// Windows and defaults
const (
	StreakWindow         = 48 * time.Hour
	RecentBooksWindow    = 7 * 24 * time.Hour
	defaultAvgDifficulty = 1.0
)

// DifficultyMultiplier clamps a book's difficulty score into [0.5, 2.0]
func DifficultyMultiplier(score float64) float64 {
	return math.Min(math.Max(score, MinDifficultyMultiplier), MaxDifficultyMultiplier)
}

// GradeBonus rewards books recommended at or above the student's grade
func GradeBonus(book domain.Book, gradeLevel int) float64 {
	if book.RecommendedAgeMin >= gradeLevel {
		return GradeBonusMultiplier
	}
	return 1.0
}

// StreakBonus is the steps-side streak multiplier, 5% per day capped at +50%
func StreakBonus(streak int) float64 {
	return math.Min(1+float64(streak)*StreakBonusPerDay, MaxStreakBonus)
}

// DiversityBonus is 10% per distinct genre, capped at +50%
func DiversityBonus(distinctGenres int) float64 {
	return math.Min(1+float64(distinctGenres)*DiversityBonusPerGenre, MaxDiversityBonus)
}

// XPStreakMultiplier is the XP-side streak multiplier. Unlike StreakBonus it is uncapped.
func XPStreakMultiplier(streak int) float64 {
	return 1 + float64(streak)*XPStreakBonusPerDay
}

// Steps combines the base steps with every bonus
func Steps(pagesRead int, b domain.Bonuses) int {
	baseSteps := pagesRead / PagesPerStep
	return int(math.Floor(float64(baseSteps) * b.Difficulty * b.Grade * b.Streak * b.Diversity))
}

// XP applies difficulty, grade and the uncapped streak multiplier to the page-based XP
func XP(pagesRead int, b domain.Bonuses, streak int) int {
	baseXP := pagesRead * XPPerPage
	return int(math.Floor(float64(baseXP) * b.Difficulty * b.Grade * XPStreakMultiplier(streak)))
}

// DistinctGenres counts the genres across a reading history
func DistinctGenres(history []domain.ReadingHistoryEntry) int {
	genres := make(map[string]struct{}, len(history))
	for _, entry := range history {
		genres[entry.Book.Genre] = struct{}{}
	}
	return len(genres)
}

// AverageDifficulty returns the mean difficulty score and false when history is empty
func AverageDifficulty(history []domain.ReadingHistoryEntry) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	var sum float64
	for _, entry := range history {
		sum += entry.Book.DifficultyScore
	}
	return sum / float64(len(history)), true
}

// TotalPages sums pages read across a reading history
func TotalPages(history []domain.ReadingHistoryEntry) int {
	total := 0
	for _, entry := range history {
		total += entry.Log.PagesRead
	}
	return total
}

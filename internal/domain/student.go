package domain

import (
	"slices"
	"time"
)

// XPPerLevel is the amount of XP separating two levels
const XPPerLevel = 1000

// StudentProfile is the read-only school context of a student
type StudentProfile struct {
	StudentID   string `json:"student_id"`
	ClassID     string `json:"class_id"`
	GradeLevel  int    `json:"grade_level"`
	ReadingGoal int    `json:"reading_goal,omitempty"`
}

// GameState is the authoritative progression record of a student.
// BoardPosition, XP and LongestStreak never decrease; UnlockedAchievements
// is append-only.
type GameState struct {
	ID                   string     `json:"id"`
	StudentID            string     `json:"student_id"`
	BoardPosition        int        `json:"board_position"`
	XP                   int        `json:"xp"`
	Level                int        `json:"level"`
	Streak               int        `json:"streak"`
	LongestStreak        int        `json:"longest_streak"`
	LastBookLoggedAt     *time.Time `json:"last_book_logged_at,omitempty"`
	UnlockedAchievements []string   `json:"unlocked_achievements"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// StreakUpdate is a compare-and-set of a student's streak counters.
// It applies only while the stored last log time still equals Prev.
// A non-empty LogID makes it apply at most once for that log.
type StreakUpdate struct {
	StudentID     string
	LogID         string
	Prev          *time.Time
	Streak        int
	LongestStreak int
	LoggedAt      time.Time
}

// StudentAchievements splits the achievement catalogue for one student
type StudentAchievements struct {
	Unlocked []Achievement `json:"unlocked"`
	Locked   []Achievement `json:"locked"`
	Total    int           `json:"total"`
}

// HasAchievement reports whether the achievement id is already unlocked
func (g *GameState) HasAchievement(id string) bool {
	return slices.Contains(g.UnlockedAchievements, id)
}

// NewGameState returns the initial state created at registration
func NewGameState(id, studentID string) GameState {
	return GameState{
		ID:                   id,
		StudentID:            studentID,
		Level:                LevelForXP(0),
		UnlockedAchievements: []string{},
		UpdatedAt:            time.Now(),
	}
}

// LevelForXP derives the level from total XP
func LevelForXP(xp int) int {
	return xp/XPPerLevel + 1
}

// RegisterStudentRequest represents a request to enrol a student in the game
type RegisterStudentRequest struct {
	StudentID   string `json:"student_id"`
	ClassID     string `json:"class_id"`
	GradeLevel  int    `json:"grade_level"`
	ReadingGoal int    `json:"reading_goal,omitempty"`
}

// Validate checks the request bounds
func (r *RegisterStudentRequest) Validate() error {
	if r.StudentID == "" {
		return NewValidationError("student_id", "is required")
	}
	if r.ClassID == "" {
		return NewValidationError("class_id", "is required")
	}
	if r.GradeLevel <= 0 {
		return NewValidationError("grade_level", "must be positive, got %d", r.GradeLevel)
	}
	if r.ReadingGoal < 0 {
		return NewValidationError("reading_goal", "must not be negative")
	}
	return nil
}

// Profile converts the request into a StudentProfile
func (r *RegisterStudentRequest) Profile() StudentProfile {
	return StudentProfile{
		StudentID:   r.StudentID,
		ClassID:     r.ClassID,
		GradeLevel:  r.GradeLevel,
		ReadingGoal: r.ReadingGoal,
	}
}

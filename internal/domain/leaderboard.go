package domain

// LeaderboardScope selects which students a leaderboard ranks
type LeaderboardScope string

const (
	LeaderboardGlobal LeaderboardScope = "global"
	LeaderboardClass  LeaderboardScope = "class"
)

// LeaderboardQuery parameterises a leaderboard read.
// Class boards rank by XP then position; the global board by position then XP.
type LeaderboardQuery struct {
	Scope   LeaderboardScope `json:"scope"`
	ClassID string           `json:"class_id,omitempty"`
	Limit   int              `json:"limit"`
}

// Validate checks the scope and class combination
func (q LeaderboardQuery) Validate() error {
	switch q.Scope {
	case LeaderboardGlobal:
		return nil
	case LeaderboardClass:
		if q.ClassID == "" {
			return NewValidationError("class_id", "is required for class scope")
		}
		return nil
	default:
		return NewValidationError("scope", "unknown leaderboard scope %q", q.Scope)
	}
}

// LeaderboardEntry represents a single entry in the leaderboard
type LeaderboardEntry struct {
	Rank      int64  `json:"rank"`
	StudentID string `json:"student_id"`
	ClassID   string `json:"class_id,omitempty"`
	Position  int    `json:"position"`
	XP        int    `json:"xp"`
	Level     int    `json:"level"`
	Streak    int    `json:"streak"`
}

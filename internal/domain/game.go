package domain

// Bonuses are the multipliers applied to a reward
type Bonuses struct {
	Difficulty float64 `json:"difficulty"`
	Grade      float64 `json:"grade"`
	Streak     float64 `json:"streak"`
	Diversity  float64 `json:"diversity"`
}

// RewardResult is the server-computed reward for one book completion
type RewardResult struct {
	Steps          int           `json:"steps"`
	XP             int           `json:"xp"`
	Achievements   []Achievement `json:"achievements"`
	Bonuses        Bonuses       `json:"bonuses"`
	FormulaVersion string        `json:"formula_version"`
}

// AchievementIDs returns the ids of the unlocked achievements
func (r *RewardResult) AchievementIDs() []string {
	ids := make([]string, 0, len(r.Achievements))
	for _, a := range r.Achievements {
		ids = append(ids, a.ID)
	}
	return ids
}

// RewardDelta is applied to a GameState as an atomic increment
type RewardDelta struct {
	Steps          int
	XP             int
	AchievementIDs []string
}

// TileType classifies a board tile
type TileType string

const (
	TileStart      TileType = "start"
	TileDiploma    TileType = "diploma"
	TileBonus      TileType = "bonus"
	TileGenreGate  TileType = "genre_gate"
	TileCheckpoint TileType = "checkpoint"
	TileChallenge  TileType = "challenge"
	TileNormal     TileType = "normal"
)

// Theme is the visual theme of a board, derived from grade level
type Theme string

const (
	ThemeForest   Theme = "forest"
	ThemeOcean    Theme = "ocean"
	ThemeSpace    Theme = "space"
	ThemeMountain Theme = "mountain"
)

// Tile is a single board square
type Tile struct {
	Position int      `json:"position"`
	Type     TileType `json:"type"`
	Theme    Theme    `json:"theme"`
}

// BoardMetadata describes the inputs a board was derived from
type BoardMetadata struct {
	BoardLength    int     `json:"board_length"`
	StudentGrade   int     `json:"student_grade"`
	AvgDifficulty  float64 `json:"avg_difficulty"`
	GenreDiversity int     `json:"genre_diversity"`
	Streak         int     `json:"streak"`
}

// BoardConfig is the personalised board of a student
type BoardConfig struct {
	Version   string        `json:"version"`
	StudentID string        `json:"student_id"`
	Tiles     []Tile        `json:"tiles"`
	Metadata  BoardMetadata `json:"metadata"`
}

// MoveRequest is a client's claim about a board move
type MoveRequest struct {
	ClaimedPosition int `json:"claimed_position"`
	ClaimedSteps    int `json:"claimed_steps"`
}

// MovementResult is the outcome of a movement consistency check
type MovementResult struct {
	Valid       bool   `json:"valid"`
	NewPosition *int   `json:"new_position,omitempty"`
	Message     string `json:"message,omitempty"`
}

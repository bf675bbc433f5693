package domain

import "time"

// ReadingLog is an append-only record of a book completion claim.
// Only the verification fields, the awarded amounts and the two
// processing markers change after creation.
type ReadingLog struct {
	ID                string     `json:"id"`
	CompletionID      string     `json:"completion_id,omitempty"`
	StudentID         string     `json:"student_id"`
	BookID            string     `json:"book_id"`
	PagesRead         int        `json:"pages_read"`
	ReviewText        string     `json:"review_text,omitempty"`
	Rating            *int       `json:"rating,omitempty"`
	MetadataHash      string     `json:"metadata_hash,omitempty"`
	VerifiedByTeacher bool       `json:"verified_by_teacher"`
	TeacherVerifiedAt *time.Time `json:"teacher_verified_at,omitempty"`
	PointsAwarded     int        `json:"points_awarded"`
	StepsAwarded      int        `json:"steps_awarded"`
	RewardedAt        *time.Time `json:"rewarded_at,omitempty"`
	StreakCounted     bool       `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ReadingHistoryEntry is a reading log joined with the book it refers to
type ReadingHistoryEntry struct {
	Log  ReadingLog `json:"log"`
	Book Book       `json:"book"`
}

// ReadingLogFilter selects reading logs of one student, most recent first
type ReadingLogFilter struct {
	StudentID    string
	VerifiedOnly bool
	Since        *time.Time
	Limit        int // 0 means no limit
	Offset       int
}

// ReadingHistoryPage is one page of a student's history, newest first
type ReadingHistoryPage struct {
	Entries []ReadingHistoryEntry `json:"entries"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// StudentStats summarises a student's verified reading
type StudentStats struct {
	StudentID         string         `json:"student_id"`
	TotalBooksRead    int            `json:"total_books_read"`
	TotalPagesRead    int            `json:"total_pages_read"`
	GenreDistribution map[string]int `json:"genre_distribution"`
	CurrentStreak     int            `json:"current_streak"`
	LongestStreak     int            `json:"longest_streak"`
	XP                int            `json:"xp"`
	Level             int            `json:"level"`
	BoardPosition     int            `json:"board_position"`
}

// BookCompletion is the event a student emits when finishing a book.
// CompletionID identifies the event across redeliveries; a completion
// carrying an id that was already recorded is not rewarded twice.
type BookCompletion struct {
	CompletionID string `json:"completion_id,omitempty"`
	StudentID    string `json:"student_id"`
	BookID       string `json:"book_id"`
	PagesRead    int    `json:"pages_read"`
	ReviewText   string `json:"review_text,omitempty"`
	Rating       *int   `json:"rating,omitempty"`
}

// BookLogResult is returned after a completion has been recorded and rewarded
type BookLogResult struct {
	ReadingLog ReadingLog   `json:"reading_log"`
	Reward     RewardResult `json:"reward"`
	GameState  GameState    `json:"game_state"`
}

// VerifyReadingRequest is a teacher's decision on a reading log
type VerifyReadingRequest struct {
	TeacherID string `json:"teacher_id"`
	Approved  bool   `json:"approved"`
	Feedback  string `json:"feedback,omitempty"`
}

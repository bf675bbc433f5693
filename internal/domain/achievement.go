package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Achievement is an immutable badge definition
type Achievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tier        int       `json:"tier"`
	Criteria    Criteria  `json:"criteria"`
	CreatedAt   time.Time `json:"created_at"`
}

// Criteria is the declarative unlock condition of an achievement.
// Every present field must hold; absent fields are ignored.
type Criteria struct {
	BooksIn7Days  *int     `json:"books_in_7_days,omitempty"`
	TotalBooks    *int     `json:"total_books,omitempty"`
	StreakDays    *int     `json:"streak_days,omitempty"`
	UniqueGenres  *int     `json:"unique_genres,omitempty"`
	TotalPages    *int     `json:"total_pages,omitempty"`
	DifficultyMin *float64 `json:"difficulty_min,omitempty"`
}

// ParseCriteria decodes and validates a criteria document. Unknown keys are rejected.
func ParseCriteria(data []byte) (Criteria, error) {
	var c Criteria
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Criteria{}, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	if err := c.Validate(); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// Validate rejects empty documents and non-positive thresholds
func (c Criteria) Validate() error {
	if c.IsEmpty() {
		return fmt.Errorf("%w: no thresholds set", ErrInvalidCriteria)
	}
	ints := []struct {
		name  string
		value *int
	}{
		{"books_in_7_days", c.BooksIn7Days},
		{"total_books", c.TotalBooks},
		{"streak_days", c.StreakDays},
		{"unique_genres", c.UniqueGenres},
		{"total_pages", c.TotalPages},
	}
	for _, f := range ints {
		if f.value != nil && *f.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidCriteria, f.name)
		}
	}
	if c.DifficultyMin != nil && *c.DifficultyMin <= 0 {
		return fmt.Errorf("%w: difficulty_min must be positive", ErrInvalidCriteria)
	}
	return nil
}

// IsEmpty reports whether no threshold is set
func (c Criteria) IsEmpty() bool {
	return c.BooksIn7Days == nil && c.TotalBooks == nil && c.StreakDays == nil &&
		c.UniqueGenres == nil && c.TotalPages == nil && c.DifficultyMin == nil
}

// CreateAchievementRequest represents a request to define a new achievement
type CreateAchievementRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tier        int             `json:"tier"`
	Criteria    json.RawMessage `json:"criteria"`
}

// ToAchievement validates the request and converts it to an Achievement
func (r *CreateAchievementRequest) ToAchievement() (Achievement, error) {
	if r.ID == "" {
		return Achievement{}, NewValidationError("id", "is required")
	}
	if r.Name == "" {
		return Achievement{}, NewValidationError("name", "is required")
	}
	if len(r.Criteria) == 0 {
		return Achievement{}, NewValidationError("criteria", "is required")
	}
	criteria, err := ParseCriteria(r.Criteria)
	if err != nil {
		return Achievement{}, &ValidationError{Field: "criteria", Message: err.Error()}
	}
	return Achievement{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Tier:        r.Tier,
		Criteria:    criteria,
		CreatedAt:   time.Now(),
	}, nil
}

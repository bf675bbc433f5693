package domain

import "time"

// Book is a catalogue entry. Difficulty is stored as entered; reward
// calculations clamp it.
type Book struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author,omitempty"`
	Pages             int       `json:"pages"`
	Genre             string    `json:"genre"`
	DifficultyScore   float64   `json:"difficulty_score"`
	RecommendedAgeMin int       `json:"recommended_age_min"`
	RecommendedAgeMax int       `json:"recommended_age_max"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateBookRequest represents a request to add a book to the catalogue
type CreateBookRequest struct {
	Title             string  `json:"title"`
	Author            string  `json:"author,omitempty"`
	Pages             int     `json:"pages"`
	Genre             string  `json:"genre"`
	DifficultyScore   float64 `json:"difficulty_score"`
	RecommendedAgeMin int     `json:"recommended_age_min"`
	RecommendedAgeMax int     `json:"recommended_age_max"`
}

// Validate checks the request bounds
func (r *CreateBookRequest) Validate() error {
	if r.Title == "" {
		return NewValidationError("title", "is required")
	}
	if r.Pages <= 0 {
		return NewValidationError("pages", "must be positive, got %d", r.Pages)
	}
	if r.Genre == "" {
		return NewValidationError("genre", "is required")
	}
	if r.DifficultyScore <= 0 {
		return NewValidationError("difficulty_score", "must be positive")
	}
	if r.RecommendedAgeMax != 0 && r.RecommendedAgeMax < r.RecommendedAgeMin {
		return NewValidationError("recommended_age_max", "must not be below recommended_age_min")
	}
	return nil
}

// ToBook converts the request into a Book with the given id
func (r *CreateBookRequest) ToBook(id string) Book {
	return Book{
		ID:                id,
		Title:             r.Title,
		Author:            r.Author,
		Pages:             r.Pages,
		Genre:             r.Genre,
		DifficultyScore:   r.DifficultyScore,
		RecommendedAgeMin: r.RecommendedAgeMin,
		RecommendedAgeMax: r.RecommendedAgeMax,
		CreatedAt:         time.Now(),
	}
}

package gamelogic

import (
	"unicode/utf8"

	"github.com/lukudiplomi/reading-board/internal/domain"
)

// Limits are the plausibility bounds applied to a book completion claim
type Limits struct {
	MaxPagesRatio   float64 // pages read may exceed the book's page count by this factor
	MinReviewLength int     // 0 disables the check
}

// DefaultLimits returns the bounds used when none are configured
func DefaultLimits() Limits {
	return Limits{MaxPagesRatio: 1.5, MinReviewLength: 20}
}

// ValidateCompletion rejects claims that are malformed or implausible for the book
func ValidateCompletion(book *domain.Book, c domain.BookCompletion, limits Limits) error {
	if c.StudentID == "" {
		return domain.NewValidationError("student_id", "is required")
	}
	if c.BookID == "" {
		return domain.NewValidationError("book_id", "is required")
	}
	if c.PagesRead <= 0 {
		return domain.NewValidationError("pages_read", "must be positive, got %d", c.PagesRead)
	}
	if c.Rating != nil && (*c.Rating < 1 || *c.Rating > 5) {
		return domain.NewValidationError("rating", "must be between 1 and 5, got %d", *c.Rating)
	}
	if limits.MinReviewLength > 0 && c.ReviewText != "" && utf8.RuneCountInString(c.ReviewText) < limits.MinReviewLength {
		return domain.NewValidationError("review_text", "must be at least %d characters", limits.MinReviewLength)
	}
	if book != nil && limits.MaxPagesRatio > 0 && float64(c.PagesRead) > float64(book.Pages)*limits.MaxPagesRatio {
		return domain.NewValidationError("pages_read", "exceeds book length: this book has %d pages", book.Pages)
	}
	return nil
}

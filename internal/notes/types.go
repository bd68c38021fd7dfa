package notes

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Note mirrors the note payload returned by the service.
type Note struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	MemoryLevel  int        `json:"memory_level"`
	Archived     bool       `json:"archived"`
	CreatedAt    time.Time  `json:"created_at"`
	NextReviewAt *time.Time `json:"next_review_at,omitempty"`
}

// DueForReview reports whether the next review date has passed.
func (n Note) DueForReview(now time.Time) bool {
	return n.NextReviewAt != nil && !n.NextReviewAt.After(now)
}

// ClampedMemoryLevel returns MemoryLevel bounded to 0..100.
func (n Note) ClampedMemoryLevel() int {
	return min(max(n.MemoryLevel, 0), 100)
}

// Sort fields accepted by GET /notes.
const (
	SortCreatedAt    = "created_at"
	SortNextReviewAt = "next_review_at"
	OrderAsc         = "asc"
	OrderDesc        = "desc"
)

// ListQuery configures GET /notes requests.
type ListQuery struct {
	Search   string
	SortBy   string
	Order    string
	Limit    int
	Offset   int
	Archived *bool
}

// Page mirrors the paginated GET /notes response.
type Page struct {
	Notes []Note `json:"notes"`
	Total int64  `json:"total"`
}

// ErrInvalidID is wrapped by ValidateID failures.
var ErrInvalidID = errors.New("invalid note id")

// ValidateID rejects ids that cannot name a note.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	return nil
}

package model

import "time"

// User owns a set of history records.
type User struct {
	ID        string    `json:"id" yaml:"id"`
	Username  string    `json:"username" yaml:"username"`
	Email     string    `json:"email" yaml:"email"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// History is a single graded answer. Score is derived from Comment and is
// nil until a backfill (or a later save path) fills it in.
type History struct {
	ID             string    `json:"id" yaml:"id"`
	UserID         string    `json:"user_id" yaml:"user_id"`
	Answer         string    `json:"answer" yaml:"answer"`
	QuestionFile   string    `json:"question_file,omitempty" yaml:"question_file,omitempty"`
	Comment        *string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	PolishedAnswer *string   `json:"polished_answer,omitempty" yaml:"polished_answer,omitempty"`
	Score          *int      `json:"score" yaml:"score"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// CommentText returns the comment or "" when it is unset.
func (h History) CommentText() string {
	if h.Comment == nil {
		return ""
	}
	return *h.Comment
}

// ScoreUpdate is a staged write of the derived score for one record.
// A nil Score writes NULL.
type ScoreUpdate struct {
	ID    string
	Score *int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page    int  `json:"page" yaml:"page"`
	PerPage int  `json:"per_page" yaml:"per_page"`
	Total   int  `json:"total" yaml:"total"`
	Pages   int  `json:"pages" yaml:"pages"`
	HasNext bool `json:"has_next" yaml:"has_next"`
	HasPrev bool `json:"has_prev" yaml:"has_prev"`
}

// HistoryPage is a page of a user's histories, newest first.
type HistoryPage struct {
	Histories  []History  `json:"histories" yaml:"histories"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
}

// NewPagination computes page metadata for total items.
func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }

// Package store implements the history storage engines for SQLite, MySQL
// and PostgreSQL.
package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/history-cli/internal/backfill"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
)

// ErrNotFound is returned when a history does not exist or belongs to
// another user.
var ErrNotFound = eris.New("history not found or not owned by user")

// ErrUserNotFound is returned when no user has the given username.
var ErrUserNotFound = eris.New("user not found")

// DefaultPerPage is the page size used when none is given.
const DefaultPerPage = 20

// HistoryStore is the record CRUD surface.
type HistoryStore interface {
	EnsureUser(ctx context.Context, username, email string) (*model.User, bool, error)
	GetUser(ctx context.Context, username string) (*model.User, error)
	SaveHistory(ctx context.Context, h *model.History) error
	ListHistories(ctx context.Context, userID string, page, perPage int) (*model.HistoryPage, error)
	GetHistory(ctx context.Context, id, userID string) (*model.History, error)
	DeleteHistory(ctx context.Context, id, userID string) error
}

// Store is a storage engine handle: schema introspection and DDL, candidate
// selection and batch commit for the backfill, plus record CRUD.
type Store interface {
	HistoryStore

	Dialect() schema.Dialect
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	ExecDDL(ctx context.Context, stmt string) error
	Candidates(ctx context.Context, c backfill.Criteria) ([]model.History, error)
	CommitScores(ctx context.Context, desc schema.Descriptor, updates []model.ScoreUpdate) error

	// Bootstrap applies the embedded base schema migrations and returns the
	// resulting schema version.
	Bootstrap(ctx context.Context) (uint, error)
	Close() error
}

// candidatesQuery selects rows with non-empty source text whose derived value
// is NULL or the sentinel. The sentinel is the only bind argument.
func candidatesQuery(d schema.Dialect, desc schema.Descriptor) string {
	id := d.QuoteIdent(desc.IDColumn)
	src := d.QuoteIdent(desc.SourceColumn)
	col := d.QuoteIdent(desc.Column)
	return fmt.Sprintf(
		"SELECT %s, %s, %s FROM %s WHERE %s IS NOT NULL AND TRIM(%s) <> '' AND (%s IS NULL OR %s = %s) ORDER BY %s",
		id, src, col, d.QuoteIdent(desc.Table),
		src, src, col, col, d.Placeholder(1), id,
	)
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return page, perPage
}

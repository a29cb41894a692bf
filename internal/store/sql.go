package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/history-cli/internal/backfill"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
)

// mysqlDupFieldName is ER_DUP_FIELDNAME.
const mysqlDupFieldName = 1060

// SQLStore implements Store over database/sql for SQLite (modernc.org/sqlite)
// and MySQL (github.com/go-sql-driver/mysql).
type SQLStore struct {
	db      *sql.DB
	dialect schema.Dialect
	dsn     string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLStore{db: db, dialect: schema.DialectSQLite, dsn: dsn}, nil
}

// NewMySQL opens a MySQL database. parseTime is forced on so DATETIME
// columns scan into time.Time.
func NewMySQL(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: parse dsn")
	}
	cfg.ParseTime = true
	dsn = cfg.FormatDSN()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "mysql: ping")
	}
	return &SQLStore{db: db, dialect: schema.DialectMySQL, dsn: dsn}, nil
}

func (s *SQLStore) Dialect() schema.Dialect {
	return s.dialect
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var query string
	switch s.dialect {
	case schema.DialectMySQL:
		query = `SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`
	default:
		query = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, table, column).Scan(&n); err != nil {
		return false, eris.Wrapf(err, "%s: column exists %s.%s", s.dialect, table, column)
	}
	return n > 0, nil
}

func (s *SQLStore) ExecDDL(ctx context.Context, stmt string) error {
	_, err := s.db.ExecContext(ctx, stmt)
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDupFieldName {
		return eris.Wrapf(schema.ErrDuplicateColumn, "%s: exec ddl: %v", s.dialect, err)
	}
	return eris.Wrapf(err, "%s: exec ddl", s.dialect)
}

func (s *SQLStore) Candidates(ctx context.Context, c backfill.Criteria) ([]model.History, error) {
	rows, err := s.db.QueryContext(ctx, candidatesQuery(s.dialect, c.Descriptor), c.Sentinel)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: query candidates", s.dialect)
	}
	defer rows.Close()

	var out []model.History
	for rows.Next() {
		var (
			h       model.History
			comment sql.NullString
			score   sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &comment, &score); err != nil {
			return nil, eris.Wrapf(err, "%s: scan candidate", s.dialect)
		}
		h.Comment = nullString(comment)
		h.Score = nullInt(score)
		out = append(out, h)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate candidates", s.dialect)
}

// CommitScores writes every update in one transaction. Any failure rolls
// the whole batch back.
func (s *SQLStore) CommitScores(ctx context.Context, desc schema.Descriptor, updates []model.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin score commit", s.dialect)
	}

	if err := s.applyScores(ctx, tx, desc, updates); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = multierror.Append(err, eris.Wrap(rbErr, "rollback"))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "%s: commit scores", s.dialect)
	}
	return nil
}

func (s *SQLStore) applyScores(ctx context.Context, tx *sql.Tx, desc schema.Descriptor, updates []model.ScoreUpdate) error {
	d := s.dialect
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		d.QuoteIdent(desc.Table), d.QuoteIdent(desc.Column), d.QuoteIdent(desc.IDColumn)))
	if err != nil {
		return eris.Wrapf(err, "%s: prepare score update", d)
	}
	defer stmt.Close()

	for _, u := range updates {
		var v any
		if u.Score != nil {
			v = *u.Score
		}
		if _, err := stmt.ExecContext(ctx, v, u.ID); err != nil {
			return eris.Wrapf(err, "%s: update score for %s", d, u.ID)
		}
	}
	return nil
}

// helpers

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/history-cli/internal/backfill"
	"github.com/sells-group/history-cli/internal/db"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
)

// pgDuplicateColumn is SQLSTATE duplicate_column.
const pgDuplicateColumn = "42701"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool       db.Pool
	connString string
	closeFn    func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, connString: connString, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Dialect() schema.Dialect {
	return schema.DialectPostgres
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`,
		table, column,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: column exists %s.%s", table, column)
	}
	return exists, nil
}

func (s *PostgresStore) ExecDDL(ctx context.Context, stmt string) error {
	_, err := s.pool.Exec(ctx, stmt)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateColumn {
		return eris.Wrapf(schema.ErrDuplicateColumn, "postgres: exec ddl: %v", err)
	}
	return eris.Wrap(err, "postgres: exec ddl")
}

func (s *PostgresStore) Candidates(ctx context.Context, c backfill.Criteria) ([]model.History, error) {
	rows, err := s.pool.Query(ctx, candidatesQuery(schema.DialectPostgres, c.Descriptor), c.Sentinel)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query candidates")
	}
	defer rows.Close()

	var out []model.History
	for rows.Next() {
		var (
			h       model.History
			comment pgtype.Text
			score   pgtype.Int8
		)
		if err := rows.Scan(&h.ID, &comment, &score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		h.Comment = pgText(comment)
		h.Score = pgInt(score)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

// CommitScores stages every update through a temp table and applies them
// with a single UPDATE ... FROM inside one transaction.
func (s *PostgresStore) CommitScores(ctx context.Context, desc schema.Descriptor, updates []model.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	rows := make([][]any, len(updates))
	for i, u := range updates {
		var v any
		if u.Score != nil {
			v = int64(*u.Score)
		}
		rows[i] = []any{u.ID, v}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin score commit")
	}

	if _, err := db.BulkUpdate(ctx, tx, db.UpdateConfig{
		Table:     desc.Table,
		KeyColumn: desc.IDColumn,
		Columns:   []string{desc.Column},
	}, rows); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			err = multierror.Append(err, eris.Wrap(rbErr, "rollback"))
		}
		return eris.Wrap(err, "postgres: apply scores")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit scores")
	}
	return nil
}

func pgText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}

func pgInt(i pgtype.Int8) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// isNoRows reports whether err is pgx's "no rows" error.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpdateConfig defines the parameters for a bulk keyed update.
type UpdateConfig struct {
	Table     string   // target table (e.g., "public.histories")
	KeyColumn string   // column matched between target and staged rows
	Columns   []string // columns to overwrite; rows carry KeyColumn first, then these
}

// BulkUpdate overwrites Columns on existing rows via a temp table:
// 1. Creates a temp table shaped like (KeyColumn, Columns...) of the target
// 2. COPY rows into the temp table
// 3. UPDATE target SET ... FROM temp WHERE target.key = temp.key
//
// It runs inside the caller's transaction; the temp table is dropped on
// commit or rollback. Rows whose key no longer exists are ignored.
func BulkUpdate(ctx context.Context, tx pgx.Tx, cfg UpdateConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: update: no key column specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: update: no columns specified")
	}

	all := append([]string{cfg.KeyColumn}, cfg.Columns...)
	tempTable := TempTableName(cfg.Table)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(all),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: update: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, all, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: update: COPY into temp table for %s", cfg.Table)
	}

	key := pgx.Identifier{cfg.KeyColumn}.Sanitize()
	setClauses := make([]string, len(cfg.Columns))
	for i, col := range cfg.Columns {
		c := pgx.Identifier{col}.Sanitize()
		setClauses[i] = fmt.Sprintf("%s = s.%s", c, c)
	}

	updateSQL := fmt.Sprintf(
		"UPDATE %s AS t SET %s FROM %s AS s WHERE t.%s = s.%s",
		sanitizeTable(cfg.Table),
		strings.Join(setClauses, ", "),
		pgx.Identifier{tempTable}.Sanitize(),
		key, key,
	)
	tag, err := tx.Exec(ctx, updateSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: update: UPDATE FROM for %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// TempTableName is the staging table BulkUpdate creates for table.
func TempTableName(table string) string {
	return fmt.Sprintf("_tmp_update_%s", strings.ReplaceAll(table, ".", "_"))
}

// sanitizeTable handles schema-qualified table names like "public.histories".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

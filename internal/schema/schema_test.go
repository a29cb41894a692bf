package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	goleak.VerifyTestMain(m)
}

// fakeStore records DDL and returns canned introspection results.
type fakeStore struct {
	dialect   Dialect
	exists    bool
	existsErr error
	ddlErr    error
	ddl       []string
}

func (f *fakeStore) Dialect() Dialect { return f.dialect }

func (f *fakeStore) ColumnExists(_ context.Context, _, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeStore) ExecDDL(_ context.Context, stmt string) error {
	f.ddl = append(f.ddl, stmt)
	return f.ddlErr
}

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		driver, dsn string
		want        Dialect
	}{
		{"sqlite", "", DialectSQLite},
		{"SQLite3", "", DialectSQLite},
		{"postgres", "", DialectPostgres},
		{"pgx", "", DialectPostgres},
		{"mysql", "", DialectMySQL},
		{"mariadb", "", DialectMySQL},
		{"oracle", "", DialectUnknown},
		{"", "postgres://u:p@localhost:5432/app", DialectPostgres},
		{"", "postgresql://localhost/app", DialectPostgres},
		{"", "user:pass@tcp(127.0.0.1:3306)/app", DialectMySQL},
		{"", "file:history.db?cache=shared", DialectSQLite},
		{"", "/var/lib/history.db", DialectSQLite},
		{"", ":memory:", DialectSQLite},
		{"", "sqlserver://localhost", DialectUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.driver+"|"+tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDialect(tt.driver, tt.dsn))
		})
	}
}

func TestAddColumnStatement(t *testing.T) {
	desc := DefaultDescriptor()
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{DialectSQLite, `ALTER TABLE "histories" ADD COLUMN "score" INTEGER`},
		{DialectPostgres, `ALTER TABLE "histories" ADD COLUMN "score" INTEGER`},
		{DialectMySQL, "ALTER TABLE `histories` ADD COLUMN `score` INT"},
		{DialectUnknown, `ALTER TABLE "histories" ADD COLUMN "score" INTEGER`},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			assert.Equal(t, tt.want, AddColumnStatement(tt.dialect, desc))
		})
	}

	desc.Type = ColumnBigInt
	assert.Equal(t, "ALTER TABLE `histories` ADD COLUMN `score` BIGINT", AddColumnStatement(DialectMySQL, desc))
	assert.Equal(t, `ALTER TABLE "histories" ADD COLUMN "score" INTEGER`, AddColumnStatement(DialectSQLite, desc))
}

func TestQuoteIdent_EscapesQuotes(t *testing.T) {
	assert.Equal(t, `"we""ird"`, DialectPostgres.QuoteIdent(`we"ird`))
	assert.Equal(t, "`we``ird`", DialectMySQL.QuoteIdent("we`ird"))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", DialectPostgres.Placeholder(1))
	assert.Equal(t, "$12", DialectPostgres.Placeholder(12))
	assert.Equal(t, "?", DialectSQLite.Placeholder(3))
	assert.Equal(t, "?", DialectMySQL.Placeholder(1))
}

func TestDescriptor_Validate(t *testing.T) {
	require.NoError(t, DefaultDescriptor().Validate())

	bad := DefaultDescriptor()
	bad.Column = "score; DROP TABLE users"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")

	bad = DefaultDescriptor()
	bad.Type = "text"
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported column type")
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	desc := DefaultDescriptor()

	p, err := NewProber(&fakeStore{exists: true}).Probe(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, Present, p)

	p, err = NewProber(&fakeStore{exists: false}).Probe(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, Absent, p)

	p, err = NewProber(&fakeStore{existsErr: errors.New("permission denied for table histories")}).Probe(ctx, desc)
	require.Error(t, err)
	assert.Equal(t, Indeterminate, p)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestPresence_String(t *testing.T) {
	assert.Equal(t, "present", Present.String())
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "indeterminate", Indeterminate.String())
}

func TestEnsure_PresentIssuesNoDDL(t *testing.T) {
	st := &fakeStore{dialect: DialectPostgres}
	m, err := NewMutator(st).Ensure(context.Background(), Present, DefaultDescriptor())
	require.NoError(t, err)
	assert.Equal(t, MutationSkipped, m)
	assert.Empty(t, st.ddl)
}

func TestEnsure_AbsentApplies(t *testing.T) {
	st := &fakeStore{dialect: DialectMySQL}
	m, err := NewMutator(st).Ensure(context.Background(), Absent, DefaultDescriptor())
	require.NoError(t, err)
	assert.Equal(t, MutationApplied, m)
	require.Len(t, st.ddl, 1)
	assert.Equal(t, "ALTER TABLE `histories` ADD COLUMN `score` INT", st.ddl[0])
}

func TestEnsure_IndeterminateStillAttempts(t *testing.T) {
	st := &fakeStore{dialect: DialectSQLite}
	m, err := NewMutator(st).Ensure(context.Background(), Indeterminate, DefaultDescriptor())
	require.NoError(t, err)
	assert.Equal(t, MutationApplied, m)
	assert.Len(t, st.ddl, 1)
}

func TestEnsure_ConflictIsSuccess(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		err     error
	}{
		{"typed signal", DialectPostgres, eris.Wrap(ErrDuplicateColumn, "postgres: exec ddl")},
		{"sqlite message", DialectSQLite, errors.New("SQL logic error: duplicate column name: score (1)")},
		{"postgres message", DialectPostgres, errors.New(`ERROR: column "score" of relation "histories" already exists (SQLSTATE 42701)`)},
		{"mysql message", DialectMySQL, errors.New("Error 1060 (42S21): Duplicate column name 'score'")},
		{"upper case", DialectUnknown, errors.New("COLUMN ALREADY EXISTS")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{dialect: tt.dialect, ddlErr: tt.err}
			m, err := NewMutator(st).Ensure(context.Background(), Absent, DefaultDescriptor())
			require.NoError(t, err)
			assert.Equal(t, MutationConflict, m)
		})
	}
}

func TestEnsure_OtherFailureIsFatal(t *testing.T) {
	st := &fakeStore{dialect: DialectSQLite, ddlErr: errors.New("no such table: histories")}
	_, err := NewMutator(st).Ensure(context.Background(), Absent, DefaultDescriptor())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaFatal))
	assert.Contains(t, err.Error(), "no such table")
}

func TestEnsure_FatalKeepsDriverError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: `relation "histories" does not exist`}
	st := &fakeStore{dialect: DialectPostgres, ddlErr: eris.Wrap(pgErr, "postgres: exec ddl")}

	m, err := NewMutator(st).Ensure(context.Background(), Absent, DefaultDescriptor())
	require.Error(t, err)
	assert.Equal(t, MutationSkipped, m)
	assert.True(t, errors.Is(err, ErrSchemaFatal))

	var got *pgconn.PgError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "42P01", got.Code)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "histories", fatal.Table)
	assert.Equal(t, "score", fatal.Column)
	assert.Contains(t, err.Error(), "schema mutation failed: add column histories.score")
}

func TestClassifyDDLError(t *testing.T) {
	desc := DefaultDescriptor()
	assert.Nil(t, classifyDDLError(DialectSQLite, desc, nil))
	assert.Nil(t, classifyDDLError(DialectSQLite, desc, errors.New("disk I/O error")))

	c := classifyDDLError(DialectSQLite, desc, errors.New("duplicate column name: score"))
	require.NotNil(t, c)
	assert.Equal(t, "duplicate column name", c.Phrase)
	assert.Equal(t, "histories", c.Table)
	assert.Contains(t, c.Error(), "histories.score already exists")

	c = classifyDDLError(DialectPostgres, desc, eris.Wrap(ErrDuplicateColumn, "exec"))
	require.NotNil(t, c)
	assert.Empty(t, c.Phrase)
	assert.True(t, errors.Is(c, ErrDuplicateColumn))
}

func TestConflictPhrases_IncludeCommonSet(t *testing.T) {
	for _, d := range []Dialect{DialectSQLite, DialectPostgres, DialectMySQL, DialectUnknown} {
		phrases := ConflictPhrases(d)
		assert.Contains(t, phrases, "already exists")
		assert.Contains(t, phrases, "duplicate column")
		assert.Contains(t, phrases, "duplicate")
	}
	assert.Contains(t, ConflictPhrases(DialectMySQL), "1060")
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/history-cli/internal/backfill"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	version, err := st.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint(2), version)
	return st
}

// newScoredSQLStore bootstraps and adds the score column.
func newScoredSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	st := newTestSQLStore(t)
	desc := schema.DefaultDescriptor()
	require.NoError(t, st.ExecDDL(context.Background(), schema.AddColumnStatement(st.Dialect(), desc)))
	return st
}

func seedUser(t *testing.T, st HistoryStore, name string) *model.User {
	t.Helper()
	u, _, err := st.EnsureUser(context.Background(), name, name+"@example.com")
	require.NoError(t, err)
	return u
}

func rawExec(t *testing.T, st *SQLStore, query string, args ...any) {
	t.Helper()
	_, err := st.db.Exec(query, args...)
	require.NoError(t, err)
}

func rawScore(t *testing.T, st *SQLStore, id string) *int {
	t.Helper()
	var score sql.NullInt64
	require.NoError(t, st.db.QueryRow(`SELECT score FROM histories WHERE id = ?`, id).Scan(&score))
	return nullInt(score)
}

// --- Bootstrap ---

func TestSQLite_Bootstrap_Idempotent(t *testing.T) {
	st := newTestSQLStore(t)

	version, err := st.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestSQLite_Bootstrap_NoScoreColumn(t *testing.T) {
	st := newTestSQLStore(t)
	ctx := context.Background()

	exists, err := st.ColumnExists(ctx, "histories", "score")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = st.ColumnExists(ctx, "histories", "comment")
	require.NoError(t, err)
	assert.True(t, exists)
}

// --- Schema ---

func TestSQLite_ColumnExists_UnknownTable(t *testing.T) {
	st := newTestSQLStore(t)

	exists, err := st.ColumnExists(context.Background(), "nope", "score")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_ExecDDL_AddThenDuplicate(t *testing.T) {
	st := newTestSQLStore(t)
	ctx := context.Background()
	stmt := schema.AddColumnStatement(st.Dialect(), schema.DefaultDescriptor())

	require.NoError(t, st.ExecDDL(ctx, stmt))

	exists, err := st.ColumnExists(ctx, "histories", "score")
	require.NoError(t, err)
	assert.True(t, exists)

	err = st.ExecDDL(ctx, stmt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column name")
}

func TestSQLite_Mutator_ConflictOnSecondAdd(t *testing.T) {
	st := newScoredSQLStore(t)

	// Indeterminate forces the DDL attempt against an existing column.
	m, err := schema.NewMutator(st).Ensure(context.Background(), schema.Indeterminate, schema.DefaultDescriptor())
	require.NoError(t, err)
	assert.Equal(t, schema.MutationConflict, m)
}

// --- Candidates ---

func TestSQLite_Candidates_Filtering(t *testing.T) {
	st := newScoredSQLStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "alice")

	now := time.Now().UTC()
	for _, h := range []struct {
		id      string
		comment any
		score   any
	}{
		{"h1", "Score: 85", nil},
		{"h2", nil, nil},
		{"h3", "", nil},
		{"h4", "   ", nil},
		{"h5", "评分：70", 0},
		{"h6", "Score: 90", 90},
		{"h7", "nothing here", nil},
	} {
		rawExec(t, st,
			`INSERT INTO histories (id, user_id, answer, comment, score, created_at) VALUES (?, ?, 'a', ?, ?, ?)`,
			h.id, u.ID, h.comment, h.score, now)
	}

	got, err := st.Candidates(ctx, backfill.Criteria{Descriptor: schema.DefaultDescriptor()})
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, h := range got {
		ids[i] = h.ID
	}
	assert.Equal(t, []string{"h1", "h5", "h7"}, ids)
	require.NotNil(t, got[1].Score)
	assert.Equal(t, 0, *got[1].Score)
	assert.Nil(t, got[0].Score)
	assert.Equal(t, "Score: 85", got[0].CommentText())
}

// --- Commit ---

func TestSQLite_CommitScores(t *testing.T) {
	st := newScoredSQLStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "alice")

	for _, id := range []string{"h1", "h2"} {
		rawExec(t, st,
			`INSERT INTO histories (id, user_id, answer, comment, score, created_at) VALUES (?, ?, 'a', 'c', 0, ?)`,
			id, u.ID, time.Now().UTC())
	}

	err := st.CommitScores(ctx, schema.DefaultDescriptor(), []model.ScoreUpdate{
		{ID: "h1", Score: model.IntPtr(85)},
		{ID: "h2", Score: nil},
	})
	require.NoError(t, err)

	require.NotNil(t, rawScore(t, st, "h1"))
	assert.Equal(t, 85, *rawScore(t, st, "h1"))
	assert.Nil(t, rawScore(t, st, "h2"))
}

func TestSQLite_CommitScores_Empty(t *testing.T) {
	st := newScoredSQLStore(t)
	assert.NoError(t, st.CommitScores(context.Background(), schema.DefaultDescriptor(), nil))
}

func TestSQLite_CommitScores_RollsBackWholeBatch(t *testing.T) {
	st := newScoredSQLStore(t)
	ctx := context.Background()
	u := seedUser(t, st, "alice")

	for _, id := range []string{"h1", "h2", "h3"} {
		rawExec(t, st,
			`INSERT INTO histories (id, user_id, answer, comment, created_at) VALUES (?, ?, 'a', 'c', ?)`,
			id, u.ID, time.Now().UTC())
	}
	rawExec(t, st, `CREATE TRIGGER reject_99 BEFORE UPDATE OF score ON histories
		WHEN NEW.score = 99 BEGIN SELECT RAISE(ABORT, 'boom'); END`)

	err := st.CommitScores(ctx, schema.DefaultDescriptor(), []model.ScoreUpdate{
		{ID: "h1", Score: model.IntPtr(10)},
		{ID: "h2", Score: model.IntPtr(20)},
		{ID: "h3", Score: model.IntPtr(99)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update score for h3")

	for _, id := range []string{"h1", "h2", "h3"} {
		assert.Nil(t, rawScore(t, st, id), id)
	}
}

// --- Histories ---

func TestSQLite_EnsureUser(t *testing.T) {
	st := newTestSQLStore(t)
	ctx := context.Background()

	u, created, err := st.EnsureUser(ctx, "admin", "admin@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, u.ID)

	again, created, err := st.EnsureUser(ctx, "admin", "other@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "admin@example.com", again.Email)
}

func TestSQLite_History_SaveGetDelete(t *testing.T) {
	st := newScoredSQLStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	h := &model.History{
		UserID:       alice.ID,
		Answer:       "my essay",
		QuestionFile: "q1.txt",
		Comment:      model.StringPtr("Score: 77"),
	}
	require.NoError(t, st.SaveHistory(ctx, h))
	require.NotEmpty(t, h.ID)

	got, err := st.GetHistory(ctx, h.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "my essay", got.Answer)
	assert.Equal(t, "q1.txt", got.QuestionFile)
	assert.Equal(t, "Score: 77", got.CommentText())
	assert.Nil(t, got.PolishedAnswer)
	assert.Nil(t, got.Score)

	_, err = st.GetHistory(ctx, h.ID, bob.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.DeleteHistory(ctx, h.ID, bob.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, st.DeleteHistory(ctx, h.ID, alice.ID))
	_, err = st.GetHistory(ctx, h.ID, alice.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListHistories_Paginated(t *testing.T) {
	st := newScoredSQLStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.SaveHistory(ctx, &model.History{
			ID:        string(rune('a' + i)),
			UserID:    alice.ID,
			Answer:    "answer",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, st.SaveHistory(ctx, &model.History{UserID: bob.ID, Answer: "other"}))

	page, err := st.ListHistories(ctx, alice.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Histories, 2)
	assert.Equal(t, "e", page.Histories[0].ID)
	assert.Equal(t, "d", page.Histories[1].ID)
	assert.Equal(t, model.Pagination{Page: 1, PerPage: 2, Total: 5, Pages: 3, HasNext: true}, page.Pagination)

	last, err := st.ListHistories(ctx, alice.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Histories, 1)
	assert.Equal(t, "a", last.Histories[0].ID)
	assert.False(t, last.Pagination.HasNext)
	assert.True(t, last.Pagination.HasPrev)
}

func TestSQLite_ListHistories_Defaults(t *testing.T) {
	st := newScoredSQLStore(t)
	u := seedUser(t, st, "carol")

	page, err := st.ListHistories(context.Background(), u.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Histories)
	assert.NotNil(t, page.Histories)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, DefaultPerPage, page.Pagination.PerPage)
}

func TestSQLite_GetUser_NotFound(t *testing.T) {
	st := newTestSQLStore(t)

	_, err := st.GetUser(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

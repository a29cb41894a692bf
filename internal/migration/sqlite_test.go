package migration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/history-cli/internal/comment"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
	"github.com/sells-group/history-cli/internal/store"
)

// snapshot reads id → score (nil for NULL) straight from the file.
func snapshot(t *testing.T, path string) map[string]*int64 {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	rows, err := db.Query(`SELECT id, score FROM histories ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close() //nolint:errcheck

	out := map[string]*int64{}
	for rows.Next() {
		var (
			id    string
			score sql.NullInt64
		)
		require.NoError(t, rows.Scan(&id, &score))
		if score.Valid {
			v := score.Int64
			out[id] = &v
		} else {
			out[id] = nil
		}
	}
	require.NoError(t, rows.Err())
	return out
}

func TestSQLite_EndToEnd_TwoRunsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	_, err = st.Bootstrap(ctx)
	require.NoError(t, err)

	u, _, err := st.EnsureUser(ctx, "admin", "admin@example.com")
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range []*string{
		model.StringPtr("Score: 85/100 well argued"),
		model.StringPtr("评分：４／５"),
		model.StringPtr("no grade given"),
		model.StringPtr("   "),
		nil,
		model.StringPtr("Score: 101"),
	} {
		require.NoError(t, st.SaveHistory(ctx, &model.History{
			ID:        string(rune('a' + i)),
			UserID:    u.ID,
			Answer:    "answer",
			Comment:   c,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	var buf bytes.Buffer
	o := New(st, comment.NewParser(), schema.DefaultDescriptor(), WithOutput(&buf))

	first, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Absent, first.Presence)
	assert.Equal(t, schema.MutationApplied, first.Mutation)
	assert.Equal(t, 4, first.Candidates)
	assert.Equal(t, 2, first.Outcome.Updated)
	assert.Equal(t, 1, first.Outcome.LeftNull)
	assert.Equal(t, 1, first.Outcome.Errored)

	after := snapshot(t, path)
	require.NotNil(t, after["a"])
	assert.Equal(t, int64(85), *after["a"])
	require.NotNil(t, after["b"])
	assert.Equal(t, int64(80), *after["b"])
	assert.Nil(t, after["c"])
	assert.Nil(t, after["d"])
	assert.Nil(t, after["e"])
	assert.Nil(t, after["f"])

	second, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Present, second.Presence)
	assert.Equal(t, schema.MutationSkipped, second.Mutation)
	assert.Equal(t, 0, second.Outcome.Updated)
	assert.Equal(t, after, snapshot(t, path))
}

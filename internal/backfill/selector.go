// Package backfill re-derives the score column for existing history records.
package backfill

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/history-cli/internal/comment"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
)

// DefaultSentinel is the "not yet computed" score left by interrupted runs.
const DefaultSentinel = 0

// Criteria selects backfill candidates: non-empty source text and a derived
// value that is NULL or equal to Sentinel.
type Criteria struct {
	Descriptor schema.Descriptor
	Sentinel   int
}

// Source queries the store for candidate records.
type Source interface {
	Candidates(ctx context.Context, c Criteria) ([]model.History, error)
}

// Selector returns records that still need a derived score.
type Selector struct {
	src      Source
	criteria Criteria
}

// NewSelector creates a Selector.
func NewSelector(src Source, criteria Criteria) *Selector {
	return &Selector{src: src, criteria: criteria}
}

// Select returns every candidate. Whitespace-only comments are dropped here
// as well as in the store query, since TRIM differs between engines.
func (s *Selector) Select(ctx context.Context) ([]model.History, error) {
	rows, err := s.src.Candidates(ctx, s.criteria)
	if err != nil {
		return nil, eris.Wrap(err, "backfill: select candidates")
	}

	out := rows[:0]
	for _, h := range rows {
		if !comment.HasText(h.CommentText()) {
			continue
		}
		if h.Score != nil && *h.Score != s.criteria.Sentinel {
			continue
		}
		out = append(out, h)
	}

	zap.L().Debug("selected backfill candidates",
		zap.String("component", "backfill.selector"),
		zap.Int("returned", len(rows)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

package backfill

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/history-cli/internal/comment"
	"github.com/sells-group/history-cli/internal/model"
	"github.com/sells-group/history-cli/internal/schema"
)

// ErrCommitFailed marks a failed bulk commit. The store has rolled the whole
// batch back when this is returned.
var ErrCommitFailed = eris.New("backfill: commit failed")

// ErrParserPanic marks a record whose parser panicked.
var ErrParserPanic = eris.New("backfill: parser panic")

// DefaultProgressEvery is how often progress is reported.
const DefaultProgressEvery = 10

// Parser derives structured fields from a comment.
type Parser interface {
	Parse(text string) (*comment.Result, error)
}

// Committer persists all staged score writes in one transaction, rolling
// back entirely on any failure.
type Committer interface {
	CommitScores(ctx context.Context, desc schema.Descriptor, updates []model.ScoreUpdate) error
}

// ProgressFunc is called every N processed candidates.
type ProgressFunc func(done, total int, o *Outcome)

// RecordErrorFunc is called for every candidate the parser rejects.
type RecordErrorFunc func(r Result)

// Engine parses candidates, stages their scores and commits once.
type Engine struct {
	parser        Parser
	store         Committer
	desc          schema.Descriptor
	progressEvery int
	onProgress    ProgressFunc
	onRecordError RecordErrorFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithProgress reports progress every n candidates.
func WithProgress(n int, fn ProgressFunc) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.progressEvery = n
		}
		e.onProgress = fn
	}
}

// WithRecordError registers a callback for parse failures.
func WithRecordError(fn RecordErrorFunc) EngineOption {
	return func(e *Engine) { e.onRecordError = fn }
}

// NewEngine creates an Engine that writes desc.Column.
func NewEngine(parser Parser, store Committer, desc schema.Descriptor, opts ...EngineOption) *Engine {
	e := &Engine{
		parser:        parser,
		store:         store,
		desc:          desc,
		progressEvery: DefaultProgressEvery,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Process parses every candidate and returns the staged writes alongside the
// per-record outcome. A parse failure never stops the pass.
func (e *Engine) Process(candidates []model.History) ([]model.ScoreUpdate, *Outcome) {
	log := zap.L().With(zap.String("component", "backfill.engine"))

	outcome := &Outcome{Results: make([]Result, 0, len(candidates))}
	staged := make([]model.ScoreUpdate, 0, len(candidates))

	for i, h := range candidates {
		r := e.processOne(h)
		outcome.add(r)

		switch r.Kind {
		case KindUpdated:
			staged = append(staged, model.ScoreUpdate{ID: h.ID, Score: r.Score})
		case KindLeftNull:
			staged = append(staged, model.ScoreUpdate{ID: h.ID, Score: nil})
		case KindErrored:
			log.Warn("comment parse failed", zap.String("history_id", h.ID), zap.Error(r.Err))
			if e.onRecordError != nil {
				e.onRecordError(r)
			}
		}

		if e.onProgress != nil && (i+1)%e.progressEvery == 0 {
			e.onProgress(i+1, len(candidates), outcome)
		}
	}
	return staged, outcome
}

// processOne parses one record. A parser panic is contained to the record
// and reported as an error.
func (e *Engine) processOne(h model.History) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			r = Result{RecordID: h.ID, Kind: KindErrored, Err: eris.Wrapf(ErrParserPanic, "%v", p)}
		}
	}()

	res, err := e.parser.Parse(h.CommentText())
	if err != nil {
		return Result{RecordID: h.ID, Kind: KindErrored, Err: err}
	}
	if res == nil || res.Score == nil {
		return Result{RecordID: h.ID, Kind: KindLeftNull}
	}
	score := *res.Score
	return Result{RecordID: h.ID, Kind: KindUpdated, Score: &score}
}

// Run processes candidates and commits every staged write in one
// transaction. The outcome is returned even when the commit fails.
func (e *Engine) Run(ctx context.Context, candidates []model.History) (*Outcome, error) {
	staged, outcome := e.Process(candidates)
	if len(staged) == 0 {
		return outcome, nil
	}

	if err := e.store.CommitScores(ctx, e.desc, staged); err != nil {
		zap.L().Error("backfill commit failed, batch rolled back",
			zap.String("component", "backfill.engine"),
			zap.Int("staged", len(staged)),
			zap.Error(err),
		)
		return outcome, eris.Wrapf(ErrCommitFailed, "%d staged writes: %v", len(staged), err)
	}
	return outcome, nil
}

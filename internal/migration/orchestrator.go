// Package migration sequences the score column migration: probe the schema,
// add the column when needed, select candidates, backfill them and report.
package migration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/history-cli/internal/backfill"
	"github.com/sells-group/history-cli/internal/schema"
)

// State is a step of a migration run.
type State string

const (
	StateStart              State = "start"
	StateProbe              State = "probe"
	StateMutate             State = "mutate"
	StateSelect             State = "select"
	StateBackfill           State = "backfill"
	StateReport             State = "report"
	StateFatalSchemaFailure State = "fatal_schema_failure"
	StateFatalCommitFailure State = "fatal_commit_failure"
)

// Fatal reports whether s ends a run with a non-zero exit.
func (s State) Fatal() bool {
	return s == StateFatalSchemaFailure || s == StateFatalCommitFailure
}

// Engine is the storage handle a migration runs against.
type Engine interface {
	schema.Introspector
	schema.Executor
	backfill.Source
	backfill.Committer
}

// Report summarizes one run. Outcome is nil when the run stopped before the
// backfill.
type Report struct {
	State       State
	Transitions []State
	Presence    schema.Presence
	ProbeErr    error
	Mutation    schema.Mutation
	Candidates  int
	Outcome     *backfill.Outcome
	Duration    time.Duration
}

func (r *Report) enter(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

// Orchestrator runs the migration states in order.
type Orchestrator struct {
	store         Engine
	parser        backfill.Parser
	desc          schema.Descriptor
	sentinel      int
	progressEvery int
	out           io.Writer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSentinel sets the placeholder value that marks a score as unset.
func WithSentinel(v int) Option {
	return func(o *Orchestrator) { o.sentinel = v }
}

// WithProgressEvery sets how often progress lines are written.
func WithProgressEvery(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.progressEvery = n
		}
	}
}

// WithOutput sets the writer for human-readable progress lines.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.out = w
		}
	}
}

// New creates an Orchestrator for desc over store.
func New(store Engine, parser backfill.Parser, desc schema.Descriptor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         store,
		parser:        parser,
		desc:          desc,
		sentinel:      backfill.DefaultSentinel,
		progressEvery: backfill.DefaultProgressEvery,
		out:           io.Discard,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one migration. The report is always returned; err is non-nil
// only when the run ended in a fatal state.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{}
	defer func() { report.Duration = time.Since(started) }()

	log := zap.L().With(
		zap.String("component", "migration"),
		zap.String("table", o.desc.Table),
		zap.String("column", o.desc.Column),
		zap.String("dialect", string(o.store.Dialect())),
	)

	report.enter(StateStart)
	o.printf("Migrating %s.%s from %s.%s\n", o.desc.Table, o.desc.Column, o.desc.Table, o.desc.SourceColumn)
	if err := o.desc.Validate(); err != nil {
		report.enter(StateFatalSchemaFailure)
		o.printf("Migration failed: %v\n", err)
		return report, eris.Wrap(schema.ErrSchemaFatal, err.Error())
	}

	// probe
	report.enter(StateProbe)
	presence, probeErr := schema.NewProber(o.store).Probe(ctx, o.desc)
	report.Presence, report.ProbeErr = presence, probeErr
	switch presence {
	case schema.Present:
		o.printf("Column %s already exists, skipping schema change\n", o.desc.Column)
	case schema.Absent:
		o.printf("Adding column %s\n", o.desc.Column)
	default:
		o.printf("Warning: could not inspect %s (%v), attempting to add column %s\n", o.desc.Table, probeErr, o.desc.Column)
	}

	// mutate
	report.enter(StateMutate)
	mutation, err := schema.NewMutator(o.store).Ensure(ctx, presence, o.desc)
	report.Mutation = mutation
	if err != nil {
		report.enter(StateFatalSchemaFailure)
		log.Error("schema change failed", zap.Error(err))
		o.printf("Failed to add column %s: %v\n", o.desc.Column, err)
		return report, err
	}
	switch mutation {
	case schema.MutationApplied:
		o.printf("Column %s added\n", o.desc.Column)
	case schema.MutationConflict:
		o.printf("Column %s already exists (detected from the database error)\n", o.desc.Column)
	}

	// select
	report.enter(StateSelect)
	candidates, err := backfill.NewSelector(o.store, backfill.Criteria{
		Descriptor: o.desc,
		Sentinel:   o.sentinel,
	}).Select(ctx)
	if err != nil {
		report.enter(StateFatalCommitFailure)
		log.Error("candidate selection failed", zap.Error(err))
		o.printf("Failed to select records: %v\n", err)
		return report, err
	}
	report.Candidates = len(candidates)

	if len(candidates) == 0 {
		report.enter(StateReport)
		report.Outcome = &backfill.Outcome{}
		o.printf("No records need a score backfill\n")
		log.Info("nothing to backfill")
		return report, nil
	}
	o.printf("Found %d records to backfill\n", len(candidates))

	// backfill
	report.enter(StateBackfill)
	engine := backfill.NewEngine(o.parser, o.store, o.desc,
		backfill.WithProgress(o.progressEvery, func(done, total int, _ *backfill.Outcome) {
			o.printf("  processed %d/%d records\n", done, total)
		}),
		backfill.WithRecordError(func(r backfill.Result) {
			o.printf("  record %s: %v\n", r.RecordID, r.Err)
		}),
	)
	outcome, err := engine.Run(ctx, candidates)
	report.Outcome = outcome
	if err != nil {
		report.enter(StateFatalCommitFailure)
		o.printf("Failed to commit scores, no records were changed: %v\n", err)
		return report, err
	}

	// report
	report.enter(StateReport)
	o.printf("Backfill complete: %s\n", outcome)
	if ids := outcome.ErroredIDs(); len(ids) > 0 {
		o.printf("Unparseable comments kept their previous score: %s\n", strings.Join(ids, ", "))
	}
	log.Info("migration complete",
		zap.String("mutation", mutation.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("updated", outcome.Updated),
		zap.Int("left_null", outcome.LeftNull),
		zap.Int("errored", outcome.Errored),
	)
	return report, nil
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...) //nolint:errcheck
}

// ExitCode maps the result of Run to a process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

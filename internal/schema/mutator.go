package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mutation describes what Ensure did.
type Mutation int

const (
	// MutationSkipped means the probe found the column; no DDL was issued.
	MutationSkipped Mutation = iota
	// MutationApplied means ADD COLUMN succeeded.
	MutationApplied
	// MutationConflict means ADD COLUMN failed because the column already
	// existed by the time it ran.
	MutationConflict
)

func (m Mutation) String() string {
	switch m {
	case MutationApplied:
		return "applied"
	case MutationConflict:
		return "already exists"
	default:
		return "skipped"
	}
}

// Executor runs a raw structural statement against the store.
type Executor interface {
	Dialect() Dialect
	ExecDDL(ctx context.Context, stmt string) error
}

// Mutator adds the derived column when it is missing.
type Mutator struct {
	store Executor
}

// NewMutator creates a Mutator over the given store handle.
func NewMutator(store Executor) *Mutator {
	return &Mutator{store: store}
}

// AddColumnStatement renders ALTER TABLE ... ADD COLUMN for the dialect.
// Unknown dialects use DefaultDialect.
func AddColumnStatement(d Dialect, desc Descriptor) string {
	dd := d.ddlDialect()
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		dd.QuoteIdent(desc.Table),
		dd.QuoteIdent(desc.Column),
		desc.Type.SQLType(dd),
	)
}

// Ensure makes sure the column exists. Only a non-conflict DDL failure is
// returned as an error, and it wraps ErrSchemaFatal.
func (m *Mutator) Ensure(ctx context.Context, presence Presence, desc Descriptor) (Mutation, error) {
	log := zap.L().With(
		zap.String("component", "schema.mutator"),
		zap.String("table", desc.Table),
		zap.String("column", desc.Column),
	)

	if presence == Present {
		log.Debug("column present, skipping ddl")
		return MutationSkipped, nil
	}

	dialect := m.store.Dialect()
	stmt := AddColumnStatement(dialect, desc)
	log.Info("adding column", zap.String("dialect", string(dialect)), zap.String("stmt", stmt))

	err := m.store.ExecDDL(ctx, stmt)
	if err == nil {
		return MutationApplied, nil
	}

	if conflict := classifyDDLError(dialect, desc, err); conflict != nil {
		log.Info("column already exists, treating as applied", zap.String("matched", conflict.Phrase))
		return MutationConflict, nil
	}

	return MutationSkipped, &FatalError{Table: desc.Table, Column: desc.Column, Err: err}
}

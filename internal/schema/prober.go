package schema

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Presence is the result of probing for the derived column.
type Presence int

const (
	// Indeterminate means introspection itself failed. It is never treated
	// as Absent; the mutator still attempts the change.
	Indeterminate Presence = iota
	Present
	Absent
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "indeterminate"
	}
}

// Introspector reports whether a column exists on a live table.
type Introspector interface {
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// Prober inspects the store for the target column.
type Prober struct {
	store Introspector
}

// NewProber creates a Prober over the given store handle.
func NewProber(store Introspector) *Prober {
	return &Prober{store: store}
}

// Probe returns Present or Absent, or Indeterminate together with the
// introspection error.
func (p *Prober) Probe(ctx context.Context, desc Descriptor) (Presence, error) {
	exists, err := p.store.ColumnExists(ctx, desc.Table, desc.Column)
	if err != nil {
		zap.L().Warn("column introspection failed",
			zap.String("component", "schema.prober"),
			zap.String("table", desc.Table),
			zap.String("column", desc.Column),
			zap.Error(err),
		)
		return Indeterminate, eris.Wrapf(err, "schema: probe %s.%s", desc.Table, desc.Column)
	}
	if exists {
		return Present, nil
	}
	return Absent, nil
}

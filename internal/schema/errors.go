package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

var (
	// ErrDuplicateColumn is returned by stores when the driver reports, via a
	// structured error code, that the column being added already exists.
	ErrDuplicateColumn = eris.New("column already exists")

	// ErrSchemaFatal marks a schema change failure that is not an
	// "already exists" conflict. It halts the migration.
	ErrSchemaFatal = eris.New("schema mutation failed")
)

// commonConflictPhrases are checked for every engine family.
var commonConflictPhrases = []string{
	"duplicate column",
	"already exists",
	"duplicate",
}

// conflictPhrases are the known "column already exists" messages per family.
//
//	sqlite:   "duplicate column name: score"
//	postgres: `column "score" of relation "histories" already exists`
//	mysql:    "Error 1060 (42S21): Duplicate column name 'score'"
var conflictPhrases = map[Dialect][]string{
	DialectSQLite:   {"duplicate column name"},
	DialectPostgres: {"already exists", "42701"},
	DialectMySQL:    {"duplicate column name", "1060"},
}

// ColumnExistsError is the typed conflict signal for an ADD COLUMN that lost
// a race with a concurrent run or an operator.
type ColumnExistsError struct {
	Table  string
	Column string
	// Phrase is the matched message fragment, empty when the store reported
	// ErrDuplicateColumn directly.
	Phrase string
	Err    error
}

func (e *ColumnExistsError) Error() string {
	if e.Phrase == "" {
		return fmt.Sprintf("column %s.%s already exists: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("column %s.%s already exists (matched %q): %v", e.Table, e.Column, e.Phrase, e.Err)
}

func (e *ColumnExistsError) Unwrap() error {
	return e.Err
}

// FatalError is a failed ADD COLUMN that was not a conflict. It matches
// ErrSchemaFatal and keeps the driver error reachable through errors.As.
type FatalError struct {
	Table  string
	Column string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: add column %s.%s: %v", ErrSchemaFatal.Error(), e.Table, e.Column, e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrSchemaFatal, e.Err}
}

// ConflictPhrases returns the phrase set checked for a dialect.
func ConflictPhrases(d Dialect) []string {
	phrases := append([]string{}, conflictPhrases[d.ddlDialect()]...)
	return append(phrases, commonConflictPhrases...)
}

// classifyDDLError returns a ColumnExistsError when err means the column is
// already there, or nil when err is a genuine failure.
func classifyDDLError(d Dialect, desc Descriptor, err error) *ColumnExistsError {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateColumn) {
		return &ColumnExistsError{Table: desc.Table, Column: desc.Column, Err: err}
	}

	fold := cases.Fold()
	msg := fold.String(err.Error())
	for _, p := range ConflictPhrases(d) {
		if strings.Contains(msg, fold.String(p)) {
			return &ColumnExistsError{Table: desc.Table, Column: desc.Column, Phrase: p, Err: err}
		}
	}
	return nil
}

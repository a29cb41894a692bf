package schema

import (
	"regexp"

	"github.com/rotisserie/eris"
)

// ColumnType is the logical type of the derived column.
type ColumnType string

const (
	ColumnInteger ColumnType = "integer"
	ColumnBigInt  ColumnType = "bigint"
)

// Descriptor names the table and columns the migration touches.
type Descriptor struct {
	Table        string
	IDColumn     string
	SourceColumn string
	Column       string
	Type         ColumnType
}

// DefaultDescriptor is the histories.score migration.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Table:        "histories",
		IDColumn:     "id",
		SourceColumn: "comment",
		Column:       "score",
		Type:         ColumnInteger,
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that every identifier is a plain SQL name.
func (d Descriptor) Validate() error {
	for field, name := range map[string]string{
		"table":         d.Table,
		"id column":     d.IDColumn,
		"source column": d.SourceColumn,
		"column":        d.Column,
	} {
		if !identPattern.MatchString(name) {
			return eris.Errorf("schema: invalid %s name %q", field, name)
		}
	}
	switch d.Type {
	case ColumnInteger, ColumnBigInt:
	default:
		return eris.Errorf("schema: unsupported column type %q", d.Type)
	}
	return nil
}

// SQLType renders the column type for the dialect.
func (t ColumnType) SQLType(d Dialect) string {
	switch d.ddlDialect() {
	case DialectMySQL:
		if t == ColumnBigInt {
			return "BIGINT"
		}
		return "INT"
	case DialectPostgres:
		if t == ColumnBigInt {
			return "BIGINT"
		}
		return "INTEGER"
	default:
		// SQLite stores every integer width as INTEGER.
		return "INTEGER"
	}
}

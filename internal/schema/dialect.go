// Package schema detects and applies the derived-column schema change.
package schema

import (
	"strconv"
	"strings"
)

// Dialect identifies a storage engine family.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectUnknown  Dialect = "unknown"
)

// DefaultDialect is used for DDL when the engine family is unrecognized.
const DefaultDialect = DialectSQLite

// DetectDialect resolves the engine family from a configured driver name,
// falling back to the shape of the DSN when the driver is empty.
func DetectDialect(driver, dsn string) Dialect {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "postgres", "postgresql", "pgx":
		return DialectPostgres
	case "mysql", "mariadb":
		return DialectMySQL
	case "":
	default:
		return DialectUnknown
	}

	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("):
		return DialectMySQL
	case strings.HasPrefix(lower, "file:"), strings.HasPrefix(lower, "sqlite"),
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), lower == ":memory:":
		return DialectSQLite
	default:
		return DialectUnknown
	}
}

// ddlDialect returns the dialect used to render DDL.
func (d Dialect) ddlDialect() Dialect {
	switch d {
	case DialectSQLite, DialectPostgres, DialectMySQL:
		return d
	default:
		return DefaultDialect
	}
}

// QuoteIdent quotes a table or column name for the dialect.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns the bind placeholder for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

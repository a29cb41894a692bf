package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/history-cli/internal/schema"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrDirtySchema is returned when a previous bootstrap stopped half way.
var ErrDirtySchema = eris.New("base schema is dirty")

// Bootstrap applies the embedded base schema for SQLite or MySQL. It uses a
// dedicated connection because the migrate driver closes its handle.
func (s *SQLStore) Bootstrap(ctx context.Context) (uint, error) {
	driverName := "sqlite"
	if s.dialect == schema.DialectMySQL {
		driverName = "mysql"
	}
	conn, err := sql.Open(driverName, s.dsn)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: open bootstrap connection", s.dialect)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return 0, eris.Wrapf(err, "%s: ping bootstrap connection", s.dialect)
	}

	var drv database.Driver
	switch s.dialect {
	case schema.DialectMySQL:
		drv, err = migratemysql.WithInstance(conn, &migratemysql.Config{})
	default:
		drv, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	}
	if err != nil {
		conn.Close()
		return 0, eris.Wrapf(err, "%s: create migrate driver", s.dialect)
	}
	return runMigrations(s.dialect, drv)
}

// Bootstrap applies the embedded base schema for PostgreSQL.
func (s *PostgresStore) Bootstrap(ctx context.Context) (uint, error) {
	cfg, err := pgx.ParseConfig(s.connString)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: parse bootstrap config")
	}
	conn := stdlib.OpenDB(*cfg)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return 0, eris.Wrap(err, "postgres: ping bootstrap connection")
	}

	drv, err := migratepgx.WithInstance(conn, &migratepgx.Config{})
	if err != nil {
		conn.Close()
		return 0, eris.Wrap(err, "postgres: create migrate driver")
	}
	return runMigrations(schema.DialectPostgres, drv)
}

func runMigrations(d schema.Dialect, drv database.Driver) (uint, error) {
	log := zap.L().With(zap.String("component", "bootstrap"), zap.String("dialect", string(d)))

	src, err := iofs.New(migrationsFS, "migrations/"+string(d))
	if err != nil {
		drv.Close()
		return 0, eris.Wrapf(err, "%s: open embedded migrations", d)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d), drv)
	if err != nil {
		src.Close()
		drv.Close()
		return 0, eris.Wrapf(err, "%s: create migrator", d)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, eris.Wrapf(err, "%s: read schema version", d)
	}
	if dirty {
		return from, eris.Wrapf(ErrDirtySchema, "%s: version %d", d, from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, eris.Wrapf(err, "%s: apply base schema", d)
	}

	to, _, err := m.Version()
	if err != nil {
		return from, eris.Wrapf(err, "%s: read schema version", d)
	}
	if to != from {
		log.Info("base schema migrated", zap.Uint("from_version", from), zap.Uint("to_version", to))
	} else {
		log.Debug("base schema is up to date", zap.Uint("version", to))
	}
	return to, nil
}

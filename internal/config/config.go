package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/history-cli/internal/schema"
)

// DefaultSQLitePath is the database file used when the sqlite driver has no
// database_url.
const DefaultSQLitePath = "history.db"

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Migration MigrationConfig `yaml:"migration" mapstructure:"migration"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MigrationConfig names the column being derived and where it comes from.
type MigrationConfig struct {
	Table         string `yaml:"table" mapstructure:"table"`
	IDColumn      string `yaml:"id_column" mapstructure:"id_column"`
	SourceColumn  string `yaml:"source_column" mapstructure:"source_column"`
	Column        string `yaml:"column" mapstructure:"column"`
	ColumnType    string `yaml:"column_type" mapstructure:"column_type"`
	Sentinel      int    `yaml:"sentinel" mapstructure:"sentinel"`
	ProgressEvery int    `yaml:"progress_every" mapstructure:"progress_every"`
}

// Descriptor converts the migration settings to a schema descriptor.
func (m MigrationConfig) Descriptor() schema.Descriptor {
	return schema.Descriptor{
		Table:        m.Table,
		IDColumn:     m.IDColumn,
		SourceColumn: m.SourceColumn,
		Column:       m.Column,
		Type:         schema.ColumnType(m.ColumnType),
	}
}

// RetryConfig controls reconnect attempts when opening the store.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from a .env file, config.yaml and HISTORY_*
// environment variables.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HISTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	desc := schema.DefaultDescriptor()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("migration.table", desc.Table)
	v.SetDefault("migration.id_column", desc.IDColumn)
	v.SetDefault("migration.source_column", desc.SourceColumn)
	v.SetDefault("migration.column", desc.Column)
	v.SetDefault("migration.column_type", string(desc.Type))
	v.SetDefault("migration.sentinel", 0)
	v.SetDefault("migration.progress_every", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	// Only SQLite has a usable default location.
	if cfg.Store.DatabaseURL == "" && schema.DetectDialect(cfg.Store.Driver, "") == schema.DialectSQLite {
		cfg.Store.DatabaseURL = DefaultSQLitePath
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it touches the store.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch d := schema.DetectDialect(c.Store.Driver, ""); d {
	case schema.DialectSQLite:
	case schema.DialectPostgres, schema.DialectMySQL:
		if c.Store.DatabaseURL == "" {
			result = multierror.Append(result, eris.Errorf("store.database_url is required for %s", d))
		}
	default:
		result = multierror.Append(result, eris.Errorf("store.driver %q is not supported (sqlite, postgres, mysql)", c.Store.Driver))
	}
	if err := c.Migration.Descriptor().Validate(); err != nil {
		result = multierror.Append(result, eris.Wrap(err, "migration"))
	}
	if c.Migration.ProgressEvery < 1 {
		result = multierror.Append(result, eris.New("migration.progress_every must be > 0"))
	}
	if c.Retry.MaxAttempts < 1 {
		result = multierror.Append(result, eris.New("retry.max_attempts must be > 0"))
	}

	return result.ErrorOrNil()
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	// Progress lines own stdout.
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

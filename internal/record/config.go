package record

import (
	"fmt"
	"time"
)

// Supported database/sql driver names.
const (
	SQLiteDriver   = "sqlite"
	PostgresDriver = "pgx"
)

// Config selects and tunes the SQL backend.
type Config struct {
	Driver          string         `mapstructure:"driver" env:"LLM_JUDGE_DB_DRIVER"`
	URL             string         `mapstructure:"url" env:"LLM_JUDGE_DB_URL"`
	ConnMaxLifetime *time.Duration `mapstructure:"conn_max_lifetime,omitempty"`
	MaxIdleConns    *int           `mapstructure:"max_idle_conns,omitempty"`
	MaxOpenConns    *int           `mapstructure:"max_open_conns,omitempty"`
}

func unsupportedDriverError(driver string) error {
	return fmt.Errorf("unsupported driver: %s", driver)
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"jlpt-snap/api/internal/settings"
)

// Driver identifiers accepted by SETTINGS_STORE.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver   string
	Redis    RedisConfig
	Defaults settings.Settings
}

// Dependencies carries handles opened by the caller.
type Dependencies struct {
	DB *sql.DB
}

// New builds the settings repo for cfg.Driver. The postgres driver creates
// its table if needed.
func New(ctx context.Context, cfg Config, deps Dependencies) (SettingsRepo, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemorySettings(cfg.Defaults), nil
	case DriverRedis:
		repo, err := NewRedisSettings(ctx, cfg.Redis, cfg.Defaults)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case DriverPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("postgres driver requires database handle")
		}
		repo := NewPostgresSettings(deps.DB, cfg.Defaults)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure app_settings: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported settings store driver: %s", driver)
	}
}

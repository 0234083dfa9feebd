package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"jlpt-snap/api/internal/settings"
)

// PostgresSettings stores one row per user in app_settings. The *sql.DB is
// expected to use the pgx stdlib driver.
type PostgresSettings struct {
	DB       *sql.DB
	defaults settings.Settings
}

func NewPostgresSettings(db *sql.DB, defaults settings.Settings) *PostgresSettings {
	return &PostgresSettings{DB: db, defaults: defaults}
}

func (p *PostgresSettings) EnsureSchema(ctx context.Context) error {
	const q = `
create table if not exists app_settings (
  key        text primary key,
  signature  text not null,
  settings   jsonb not null,
  updated_at timestamptz not null default now()
)`
	_, err := p.DB.ExecContext(ctx, q)
	return err
}

func (p *PostgresSettings) Load(ctx context.Context, key string) (settings.Settings, error) {
	const q = `select signature, settings from app_settings where key = $1`
	var (
		sig string
		js  []byte
	)
	err := p.DB.QueryRowContext(ctx, q, key).Scan(&sig, &js)
	if errors.Is(err, sql.ErrNoRows) {
		return p.defaults, nil
	}
	if err != nil {
		return p.defaults, fmt.Errorf("select app_settings: %w", err)
	}

	env, _ := json.Marshal(struct {
		Signature string          `json:"signature"`
		Settings  json.RawMessage `json:"settings"`
	}{sig, js})
	s, err := decode(env, p.defaults)
	if err != nil {
		// stale shape: drop the row, never merge it
		if derr := p.Delete(ctx, key); derr != nil {
			return p.defaults, derr
		}
		return p.defaults, nil
	}
	return s, nil
}

func (p *PostgresSettings) Save(ctx context.Context, key string, s settings.Settings) error {
	js, err := json.Marshal(s)
	if err != nil {
		return err
	}
	const q = `
insert into app_settings (key, signature, settings, updated_at)
values ($1, $2, $3, now())
on conflict (key) do update
set signature  = excluded.signature,
    settings   = excluded.settings,
    updated_at = now()`
	_, err = p.DB.ExecContext(ctx, q, key, settings.Signature(), string(js))
	return err
}

func (p *PostgresSettings) Delete(ctx context.Context, key string) error {
	_, err := p.DB.ExecContext(ctx, `delete from app_settings where key = $1`, key)
	return err
}

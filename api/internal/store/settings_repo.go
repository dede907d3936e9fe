package store

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = sql.ErrNoRows

// Settings is the persisted provider selection and API keys.
type Settings struct {
	Provider    string
	Model       string
	Credentials map[string]string
}

type SettingsRepo struct{ DB *sql.DB }

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{DB: db} }

const schema = `
create table if not exists active_selection (
  id         smallint primary key default 1 check (id = 1),
  provider   text not null,
  model      text not null,
  updated_at timestamptz not null default now()
);
create table if not exists provider_credentials (
  provider   text primary key,
  api_key    text not null,
  updated_at timestamptz not null default now()
)`

func (r *SettingsRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

// Load returns the stored settings. A missing selection row leaves Provider
// and Model empty.
func (r *SettingsRepo) Load(ctx context.Context) (Settings, error) {
	s := Settings{Credentials: map[string]string{}}

	const qSel = `select provider, model from active_selection where id = 1`
	err := r.DB.QueryRowContext(ctx, qSel).Scan(&s.Provider, &s.Model)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Settings{}, err
	}

	const qCred = `select provider, api_key from provider_credentials order by provider`
	rows, err := r.DB.QueryContext(ctx, qCred)
	if err != nil {
		return Settings{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var provider, key string
		if err := rows.Scan(&provider, &key); err != nil {
			return Settings{}, err
		}
		s.Credentials[provider] = key
	}
	return s, rows.Err()
}

func (r *SettingsRepo) SaveSelection(ctx context.Context, provider, model string) error {
	const q = `
insert into active_selection (id, provider, model)
values (1, $1, $2)
on conflict (id) do update
set provider = excluded.provider, model = excluded.model, updated_at = now()`
	_, err := r.DB.ExecContext(ctx, q, provider, model)
	return err
}

func (r *SettingsRepo) SaveCredential(ctx context.Context, provider, apiKey string) error {
	const q = `
insert into provider_credentials (provider, api_key)
values ($1, $2)
on conflict (provider) do update
set api_key = excluded.api_key, updated_at = now()`
	_, err := r.DB.ExecContext(ctx, q, provider, apiKey)
	return err
}

// DeleteCredential returns ErrNotFound when nothing was stored for provider.
func (r *SettingsRepo) DeleteCredential(ctx context.Context, provider string) error {
	const q = `delete from provider_credentials where provider = $1`
	res, err := r.DB.ExecContext(ctx, q, provider)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

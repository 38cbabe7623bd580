package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/platform/database"
)

type SettingsRepository interface {
	// Get returns common.ErrNotFound when the key has never been set.
	Get(ctx context.Context, key string) (*model.Setting, error)
	Set(ctx context.Context, key, value string) (*model.Setting, error)
	// SetIfAbsent stores value only when key is unset and reports whether it did.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type settingsRepository struct {
	db *database.DB
}

func NewSettingsRepository(db *database.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (*model.Setting, error) {
	query := r.db.Rebind(`SELECT key, value, updated_at FROM system_settings WHERE key = ?`)
	setting := &model.Setting{}
	err := r.db.QueryRowContext(ctx, query, key).Scan(&setting.Key, &setting.Value, database.ScanTime(&setting.UpdatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("settingsRepository.Get: %w", err)
	}
	return setting, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) (*model.Setting, error) {
	now := time.Now().UTC()
	// ON CONFLICT upserts are shared by Postgres and SQLite.
	query := r.db.Rebind(`INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, key, value, r.db.Time(now)); err != nil {
		return nil, fmt.Errorf("settingsRepository.Set: %w", err)
	}
	return &model.Setting{Key: key, Value: value, UpdatedAt: now}, nil
}

func (r *settingsRepository) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	query := r.db.Rebind(`INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT (key) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query, key, value, r.db.Time(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("settingsRepository.SetIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settingsRepository.SetIfAbsent: %w", err)
	}
	return n == 1, nil
}

func (r *settingsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM system_settings WHERE key = ?`), key); err != nil {
		return fmt.Errorf("settingsRepository.Delete: %w", err)
	}
	return nil
}

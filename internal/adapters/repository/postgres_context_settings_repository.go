package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var _ domain.ContextSettingsRepository = (*PostgresContextSettingsRepository)(nil)

type PostgresContextSettingsRepository struct {
	db *sqlx.DB
}

func NewPostgresContextSettingsRepository(db *sqlx.DB) *PostgresContextSettingsRepository {
	return &PostgresContextSettingsRepository{db: db}
}

func (r *PostgresContextSettingsRepository) Get(ctx context.Context, userID string) (*domain.ContextSettings, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT settings FROM context_settings WHERE user_id = $1`, userID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	var settings domain.ContextSettings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context settings: %w", err)
	}
	return &settings, nil
}

func (r *PostgresContextSettingsRepository) Save(ctx context.Context, userID string, settings *domain.ContextSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal context settings: %w", err)
	}

	query := `
		INSERT INTO context_settings (user_id, settings, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, userID, payload); err != nil {
		return fmt.Errorf("failed to save context settings: %w", err)
	}
	return nil
}

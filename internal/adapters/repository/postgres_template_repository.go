package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ domain.TemplateRepository = (*PostgresTemplateRepository)(nil)

type PostgresTemplateRepository struct {
	db *sqlx.DB
}

func NewPostgresTemplateRepository(db *sqlx.DB) *PostgresTemplateRepository {
	return &PostgresTemplateRepository{db: db}
}

type scannable interface {
	Scan(dest ...interface{}) error
}

const templateColumns = `
	id, user_id, name, habits,
	rule_enabled, rule_time_slots, rule_day_categories, rule_location_categories, rule_priority,
	is_default, last_used_at, version, deleted_at, created_at, updated_at`

func (r *PostgresTemplateRepository) scanRow(row scannable) (*domain.RoutineTemplate, error) {
	var t domain.RoutineTemplate
	var habitsJSON []byte
	var ruleEnabled sql.NullBool
	var slots, days, locations []string
	var priority int

	err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &habitsJSON,
		&ruleEnabled, pq.Array(&slots), pq.Array(&days), pq.Array(&locations), &priority,
		&t.IsDefault, &t.LastUsedAt, &t.Version, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(habitsJSON) > 0 {
		if err := json.Unmarshal(habitsJSON, &t.Habits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal habits: %w", err)
		}
	}

	if ruleEnabled.Valid {
		t.ContextRule = &domain.ContextRule{
			Enabled:            ruleEnabled.Bool,
			TimeSlots:          nilIfEmpty(slots),
			DayCategories:      nilIfEmpty(days),
			LocationCategories: nilIfEmpty(locations),
			Priority:           priority,
		}
	}
	return &t, nil
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

// ruleArgs flattens the optional rule into column values. A nil rule is
// stored as a NULL rule_enabled.
func ruleArgs(rule *domain.ContextRule) (sql.NullBool, interface{}, interface{}, interface{}, int) {
	if rule == nil {
		empty := pq.Array([]string{})
		return sql.NullBool{}, empty, empty, empty, 0
	}
	return sql.NullBool{Bool: rule.Enabled, Valid: true},
		pq.Array(orEmpty(rule.TimeSlots)),
		pq.Array(orEmpty(rule.DayCategories)),
		pq.Array(orEmpty(rule.LocationCategories)),
		rule.Priority
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (r *PostgresTemplateRepository) Create(ctx context.Context, t *domain.RoutineTemplate) error {
	habitsJSON, err := json.Marshal(t.Habits)
	if err != nil {
		return fmt.Errorf("failed to marshal habits: %w", err)
	}
	enabled, slots, days, locations, priority := ruleArgs(t.ContextRule)

	query := `
        INSERT INTO routine_templates (` + templateColumns + `
        ) VALUES (
            $1, $2, $3, $4,
            $5, $6, $7, $8, $9,
            $10, $11, 1, NULL, $12, $13
        )`

	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Name, habitsJSON,
		enabled, slots, days, locations, priority,
		t.IsDefault, t.LastUsedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	t.Version = 1
	return nil
}

func (r *PostgresTemplateRepository) GetByID(ctx context.Context, id string) (*domain.RoutineTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM routine_templates WHERE id = $1 AND deleted_at IS NULL`

	t, err := r.scanRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return t, nil
}

func (r *PostgresTemplateRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.RoutineTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	templates := make([]*domain.RoutineTemplate, 0)
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("row scan error: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *PostgresTemplateRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.RoutineTemplate, error) {
	query := `
        SELECT ` + templateColumns + ` FROM routine_templates
        WHERE user_id = $1 AND deleted_at IS NULL
        ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, userID)
}

func (r *PostgresTemplateRepository) Update(ctx context.Context, t *domain.RoutineTemplate) error {
	habitsJSON, err := json.Marshal(t.Habits)
	if err != nil {
		return err
	}
	enabled, slots, days, locations, priority := ruleArgs(t.ContextRule)

	query := `
        UPDATE routine_templates SET
            name=$1, habits=$2,
            rule_enabled=$3, rule_time_slots=$4, rule_day_categories=$5,
            rule_location_categories=$6, rule_priority=$7, is_default=$8,
            updated_at=NOW(), version = version + 1
        WHERE id=$9 AND version=$10 AND deleted_at IS NULL
        RETURNING version, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		t.Name, habitsJSON,
		enabled, slots, days, locations, priority, t.IsDefault,
		t.ID, t.Version,
	)

	var newVersion int
	var newUpdatedAt time.Time
	if err := row.Scan(&newVersion, &newUpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var count int
			existsQuery := `SELECT count(*) FROM routine_templates WHERE id = $1 AND deleted_at IS NULL`
			if checkErr := r.db.QueryRowContext(ctx, existsQuery, t.ID).Scan(&count); checkErr != nil {
				return fmt.Errorf("existence check failed: %w", checkErr)
			}
			if count == 0 {
				return domain.ErrTemplateNotFound
			}
			return domain.ErrTemplateConflict
		}
		return fmt.Errorf("update query failed: %w", err)
	}

	t.Version = newVersion
	t.UpdatedAt = newUpdatedAt
	return nil
}

func (r *PostgresTemplateRepository) Delete(ctx context.Context, id string) error {
	query := `
        UPDATE routine_templates
        SET deleted_at = NOW(), updated_at = NOW(), version = version + 1
        WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete query failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// TouchLastUsed moves updated_at so the delta sync carries the new
// last_used_at, but leaves version alone: it is not an edit.
func (r *PostgresTemplateRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE routine_templates SET last_used_at = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch query failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func (r *PostgresTemplateRepository) GetChanges(ctx context.Context, userID string, since time.Time) ([]*domain.RoutineTemplate, error) {
	query := `
        SELECT ` + templateColumns + ` FROM routine_templates
        WHERE user_id = $1 AND updated_at > $2
        ORDER BY updated_at ASC`
	return r.list(ctx, query, userID, since)
}

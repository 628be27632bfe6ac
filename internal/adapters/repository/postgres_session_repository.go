package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var _ domain.SessionRepository = (*PostgresSessionRepository)(nil)

type PostgresSessionRepository struct {
	db *sqlx.DB
}

func NewPostgresSessionRepository(db *sqlx.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

type sessionRow struct {
	SessionID   string       `db:"session_id"`
	UserID      string       `db:"user_id"`
	DeviceID    string       `db:"device_id"`
	RoutineID   string       `db:"routine_id"`
	RoutineName string       `db:"routine_name"`
	Status      string       `db:"status"`
	IsCompleted bool         `db:"is_completed"`
	StartedAt   time.Time    `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	TotalHabits int          `db:"total_habits"`
	Completions []byte       `db:"completions"`
	Retracted   []byte       `db:"retracted"`
	StoredAt    time.Time    `db:"stored_at"`
}

func (row sessionRow) toRecord() (*domain.CompletionRecord, error) {
	r := &domain.CompletionRecord{
		SessionID:   row.SessionID,
		UserID:      row.UserID,
		DeviceID:    row.DeviceID,
		RoutineID:   row.RoutineID,
		RoutineName: row.RoutineName,
		Status:      domain.SessionState(row.Status),
		IsCompleted: row.IsCompleted,
		StartedAt:   row.StartedAt.UTC(),
		TotalHabits: row.TotalHabits,
	}
	if row.CompletedAt.Valid {
		at := row.CompletedAt.Time.UTC()
		r.CompletedAt = &at
	}
	if err := json.Unmarshal(row.Completions, &r.Completions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completions: %w", err)
	}
	if len(row.Retracted) > 0 {
		if err := json.Unmarshal(row.Retracted, &r.RetractedCompletions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retracted completions: %w", err)
		}
		if len(r.RetractedCompletions) == 0 {
			r.RetractedCompletions = nil
		}
	}
	return r, nil
}

func (r *PostgresSessionRepository) Save(ctx context.Context, record *domain.CompletionRecord) error {
	completions, err := json.Marshal(record.Completions)
	if err != nil {
		return fmt.Errorf("failed to marshal completions: %w", err)
	}
	retracted := []byte("[]")
	if len(record.RetractedCompletions) > 0 {
		if retracted, err = json.Marshal(record.RetractedCompletions); err != nil {
			return fmt.Errorf("failed to marshal retracted completions: %w", err)
		}
	}

	query := `
		INSERT INTO routine_sessions (
			session_id, user_id, device_id, routine_id, routine_name,
			status, is_completed, started_at, completed_at, total_habits,
			completions, retracted, stored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (session_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		record.SessionID, record.UserID, record.DeviceID, record.RoutineID, record.RoutineName,
		string(record.Status), record.IsCompleted, record.StartedAt, record.CompletedAt, record.TotalHabits,
		completions, retracted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", record.SessionID, err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.CompletionRecord, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM routine_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return row.toRecord()
}

func (r *PostgresSessionRepository) selectRecords(ctx context.Context, query string, args ...interface{}) ([]*domain.CompletionRecord, error) {
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	records := make([]*domain.CompletionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *PostgresSessionRepository) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*domain.CompletionRecord, error) {
	query := `
		SELECT * FROM routine_sessions
		WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at ASC`
	return r.selectRecords(ctx, query, userID, from, to)
}

func (r *PostgresSessionRepository) GetChanges(ctx context.Context, userID string, since time.Time) ([]*domain.CompletionRecord, error) {
	query := `
		SELECT * FROM routine_sessions
		WHERE user_id = $1 AND stored_at > $2
		ORDER BY stored_at ASC`
	return r.selectRecords(ctx, query, userID, since)
}

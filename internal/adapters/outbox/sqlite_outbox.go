// Package outbox keeps completion deliveries that could not reach their sink
// in a local SQLite file so they survive restarts.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

type SQLiteOutbox struct {
	db *sqlx.DB
}

type deliveryRow struct {
	SessionID     string `db:"session_id"`
	Sink          string `db:"sink"`
	Record        string `db:"record"`
	Attempts      int    `db:"attempts"`
	NextAttemptAt int64  `db:"next_attempt_at"`
	LastError     string `db:"last_error"`
	CreatedAt     int64  `db:"created_at"`
}

// Open creates or opens dir/outbox.db in WAL mode.
func Open(dir string) (*SQLiteOutbox, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}

	dsn := filepath.Join(dir, "outbox.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping outbox: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	o := &SQLiteOutbox{db: db}
	if err := o.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return o, nil
}

func (o *SQLiteOutbox) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS deliveries (
			session_id      TEXT NOT NULL,
			sink            TEXT NOT NULL,
			record          TEXT NOT NULL,
			attempts        INTEGER NOT NULL DEFAULT 0,
			next_attempt_at INTEGER NOT NULL,
			last_error      TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			PRIMARY KEY (session_id, sink)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_next ON deliveries(next_attempt_at)`,
	}
	for _, stmt := range statements {
		if _, err := o.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (o *SQLiteOutbox) Close() error {
	return o.db.Close()
}

func (o *SQLiteOutbox) Put(ctx context.Context, d domain.PendingDelivery) error {
	payload, err := json.Marshal(d.Record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", d.Record.SessionID, err)
	}

	query := `
		INSERT INTO deliveries (session_id, sink, record, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, sink) DO NOTHING
	`
	_, err = o.db.ExecContext(ctx, query,
		d.Record.SessionID, d.Sink, string(payload), d.Attempts,
		d.NextAttemptAt.UnixMilli(), d.LastError, time.Now().UnixMilli(),
	)
	return err
}

func (o *SQLiteOutbox) Due(ctx context.Context, now time.Time, limit int) ([]domain.PendingDelivery, error) {
	query := `
		SELECT session_id, sink, record, attempts, next_attempt_at, last_error, created_at
		FROM deliveries
		WHERE next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT ?
	`
	var rows []deliveryRow
	if err := o.db.SelectContext(ctx, &rows, query, now.UnixMilli(), limit); err != nil {
		return nil, err
	}

	due := make([]domain.PendingDelivery, 0, len(rows))
	for _, r := range rows {
		var record domain.CompletionRecord
		if err := json.Unmarshal([]byte(r.Record), &record); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", r.SessionID, err)
		}
		due = append(due, domain.PendingDelivery{
			Sink:          r.Sink,
			Record:        record,
			Attempts:      r.Attempts,
			NextAttemptAt: time.UnixMilli(r.NextAttemptAt).UTC(),
			LastError:     r.LastError,
		})
	}
	return due, nil
}

func (o *SQLiteOutbox) Reschedule(ctx context.Context, sessionID, sink string, attempts int, next time.Time, lastErr string) error {
	query := `
		UPDATE deliveries
		SET attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE session_id = ? AND sink = ?
	`
	_, err := o.db.ExecContext(ctx, query, attempts, next.UnixMilli(), lastErr, sessionID, sink)
	return err
}

func (o *SQLiteOutbox) Delete(ctx context.Context, sessionID, sink string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM deliveries WHERE session_id = ? AND sink = ?`, sessionID, sink)
	return err
}

func (o *SQLiteOutbox) Pending(ctx context.Context) (int, error) {
	var n int
	err := o.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM deliveries`)
	return n, err
}

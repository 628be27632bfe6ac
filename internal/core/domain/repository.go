package domain

import (
	"context"
	"time"
)

type TemplateRepository interface {
	// Create persists a new routine template.
	Create(ctx context.Context, t *RoutineTemplate) error

	// GetByID retrieves an active (non-deleted) template.
	GetByID(ctx context.Context, id string) (*RoutineTemplate, error)

	// ListByUserID retrieves every active template owned by the user.
	ListByUserID(ctx context.Context, userID string) ([]*RoutineTemplate, error)

	// Update modifies a template.
	// Implementations must check Version and bump it, returning ErrTemplateConflict on mismatch.
	Update(ctx context.Context, t *RoutineTemplate) error

	// Delete performs a soft delete so that other devices receive the tombstone on sync.
	Delete(ctx context.Context, id string) error

	// TouchLastUsed records when a template last started a session. It does not bump Version.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error

	// GetChanges [SYNC] Returns creations, updates and tombstones after since.
	GetChanges(ctx context.Context, userID string, since time.Time) ([]*RoutineTemplate, error)
}

type SessionRepository interface {
	// Save stores a terminal session record. Saving the same SessionID twice is a no-op.
	Save(ctx context.Context, record *CompletionRecord) error

	GetByID(ctx context.Context, sessionID string) (*CompletionRecord, error)

	// ListByUser returns the records started in [from, to), oldest first.
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*CompletionRecord, error)

	// GetChanges [SYNC] Returns records stored after since.
	GetChanges(ctx context.Context, userID string, since time.Time) ([]*CompletionRecord, error)
}

type ContextSettingsRepository interface {
	// Get returns ErrSettingsNotFound when the user never saved settings.
	Get(ctx context.Context, userID string) (*ContextSettings, error)

	Save(ctx context.Context, userID string, settings *ContextSettings) error
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateTimezone(ctx context.Context, id, timezone string) error
}

// HistorySink names the sink that writes records to the session repository.
const HistorySink = "history"

// CompletionSink is an external destination for finished sessions (history
// store, cross-device transport). Deliver must be idempotent on SessionID.
type CompletionSink interface {
	Name() string
	Deliver(ctx context.Context, record CompletionRecord) error
}

// PendingDelivery is a completion record parked for a sink that could not
// take it. Attempts counts failed deliveries so far.
type PendingDelivery struct {
	Sink          string           `json:"sink"`
	Record        CompletionRecord `json:"record"`
	Attempts      int              `json:"attempts"`
	NextAttemptAt time.Time        `json:"next_attempt_at"`
	LastError     string           `json:"last_error,omitempty"`
}

// DeliveryOutbox is the durable retry queue in front of the sinks. Rows are
// keyed by (SessionID, Sink): putting the same pair twice keeps the first row.
type DeliveryOutbox interface {
	Put(ctx context.Context, d PendingDelivery) error

	// Due returns up to limit rows whose NextAttemptAt is not after now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]PendingDelivery, error)

	Reschedule(ctx context.Context, sessionID, sink string, attempts int, next time.Time, lastErr string) error
	Delete(ctx context.Context, sessionID, sink string) error
	Pending(ctx context.Context) (int, error)
}

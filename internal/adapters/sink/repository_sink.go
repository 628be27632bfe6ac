package sink

import (
	"context"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var _ domain.CompletionSink = (*RepositorySink)(nil)

// RepositorySink stores records through a SessionRepository. Behind the
// outbox it retries history writes that failed while the session finished.
type RepositorySink struct {
	name string
	repo domain.SessionRepository
}

func NewRepositorySink(name string, repo domain.SessionRepository) *RepositorySink {
	return &RepositorySink{name: name, repo: repo}
}

func (s *RepositorySink) Name() string {
	return s.name
}

func (s *RepositorySink) Deliver(ctx context.Context, record domain.CompletionRecord) error {
	return s.repo.Save(ctx, &record)
}

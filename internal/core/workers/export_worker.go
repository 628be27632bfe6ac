package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/metrics"
)

var ErrUnknownSink = errors.New("no sink registered under that name")

type ExportConfig struct {
	QueueSize     int
	RetryInterval time.Duration
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	BatchSize     int
	// RetriesPerSecond paces redelivery so a recovering sink is not flooded.
	RetriesPerSecond float64
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		QueueSize:        100,
		RetryInterval:    5 * time.Second,
		BaseDelay:        time.Second,
		MaxDelay:         5 * time.Minute,
		MaxAttempts:      10,
		BatchSize:        50,
		RetriesPerSecond: 20,
	}
}

// ExportWorker delivers finished sessions to every sink in the background.
// Deliveries that fail are parked in the outbox and retried with exponential
// backoff until they succeed or run out of attempts.
type ExportWorker struct {
	sinks   map[string]domain.CompletionSink
	order   []string
	outbox  domain.DeliveryOutbox
	cfg     ExportConfig
	jobs    chan domain.CompletionRecord
	limiter *rate.Limiter
	now     func() time.Time
	done    sync.WaitGroup
}

func NewExportWorker(outbox domain.DeliveryOutbox, cfg ExportConfig, sinks ...domain.CompletionSink) *ExportWorker {
	w := &ExportWorker{
		sinks:   make(map[string]domain.CompletionSink, len(sinks)),
		outbox:  outbox,
		cfg:     cfg,
		jobs:    make(chan domain.CompletionRecord, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.RetriesPerSecond), 1),
		now:     time.Now,
	}
	for _, s := range sinks {
		w.sinks[s.Name()] = s
		w.order = append(w.order, s.Name())
	}
	return w
}

func (w *ExportWorker) WithClock(now func() time.Time) *ExportWorker {
	w.now = now
	return w
}

func (w *ExportWorker) Start(ctx context.Context) {
	w.done.Add(1)
	go func() {
		defer w.done.Done()
		log.Printf("[EXPORT] Worker started with sinks %v", w.order)

		ticker := time.NewTicker(w.cfg.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case record := <-w.jobs:
				w.Deliver(ctx, record)
			case <-ticker.C:
				if _, err := w.RetryDue(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[OUTBOX] Retry pass failed: %v", err)
				}
			case <-ctx.Done():
				w.drain()
				log.Println("[EXPORT] Worker shutting down...")
				return
			}
		}
	}()
}

// Wait blocks until the worker goroutine has returned after its context was cancelled.
func (w *ExportWorker) Wait() {
	w.done.Wait()
}

// drain parks whatever is still queued so nothing is lost on shutdown.
func (w *ExportWorker) drain() {
	for {
		select {
		case record := <-w.jobs:
			w.parkAll(record, "worker stopped before delivery")
		default:
			return
		}
	}
}

// Enqueue never blocks. With a full queue the record goes straight to the
// outbox; an error means it could not be parked either.
func (w *ExportWorker) Enqueue(record domain.CompletionRecord) error {
	select {
	case w.jobs <- record:
		return nil
	default:
		log.Printf("[EXPORT] Queue full, parking session %s in the outbox", record.SessionID)
		return w.parkAll(record, "export queue full")
	}
}

// Park queues the record in the outbox for a single sink, bypassing the other
// sinks. The retry loop picks it up on its next tick.
func (w *ExportWorker) Park(record domain.CompletionRecord, sink string) error {
	if _, ok := w.sinks[sink]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSink, sink)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return w.park(ctx, sink, record, "queued for retry")
}

func (w *ExportWorker) parkAll(record domain.CompletionRecord, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var firstErr error
	for _, name := range w.order {
		if err := w.park(ctx, name, record, reason); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *ExportWorker) park(ctx context.Context, sink string, record domain.CompletionRecord, reason string) error {
	err := w.outbox.Put(ctx, domain.PendingDelivery{
		Sink:          sink,
		Record:        record,
		Attempts:      0,
		NextAttemptAt: w.now().UTC(),
		LastError:     reason,
	})
	if err != nil {
		log.Printf("[OUTBOX] Failed to park %s for %s: %v", record.SessionID, sink, err)
		return err
	}
	w.refreshPending(ctx)
	return nil
}

// Deliver hands the record to every sink concurrently. Sinks that fail get an
// outbox row scheduled after the first backoff step.
func (w *ExportWorker) Deliver(ctx context.Context, record domain.CompletionRecord) {
	var g errgroup.Group
	for _, name := range w.order {
		name := name
		s := w.sinks[name]
		g.Go(func() error {
			err := s.Deliver(ctx, record)
			if err == nil {
				metrics.Deliveries.WithLabelValues(name, "ok").Inc()
				return nil
			}

			metrics.Deliveries.WithLabelValues(name, "retry").Inc()
			log.Printf("[EXPORT] %s rejected session %s: %v", name, record.SessionID, err)

			parkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			return w.outbox.Put(parkCtx, domain.PendingDelivery{
				Sink:          name,
				Record:        record,
				Attempts:      1,
				NextAttemptAt: w.now().UTC().Add(Backoff(w.cfg.BaseDelay, w.cfg.MaxDelay, 1)),
				LastError:     err.Error(),
			})
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[OUTBOX] Failed to park session %s: %v", record.SessionID, err)
	}
	w.refreshPending(ctx)
}

// RetryDue redelivers one batch of due outbox rows and returns how many were
// delivered.
func (w *ExportWorker) RetryDue(ctx context.Context) (int, error) {
	due, err := w.outbox.Due(ctx, w.now().UTC(), w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, d := range due {
		if err := w.limiter.Wait(ctx); err != nil {
			return delivered, err
		}
		sessionID := d.Record.SessionID

		s, ok := w.sinks[d.Sink]
		if !ok {
			log.Printf("[OUTBOX] Dropping %s: sink %q is not configured", sessionID, d.Sink)
			metrics.Deliveries.WithLabelValues(d.Sink, "dead").Inc()
			if err := w.outbox.Delete(ctx, sessionID, d.Sink); err != nil {
				return delivered, err
			}
			continue
		}

		deliverErr := s.Deliver(ctx, d.Record)
		if deliverErr == nil {
			metrics.Deliveries.WithLabelValues(d.Sink, "ok").Inc()
			if err := w.outbox.Delete(ctx, sessionID, d.Sink); err != nil {
				return delivered, err
			}
			delivered++
			continue
		}

		attempts := d.Attempts + 1
		if attempts >= w.cfg.MaxAttempts {
			log.Printf("[OUTBOX] Giving up on %s for %s after %d attempts: %v", sessionID, d.Sink, attempts, deliverErr)
			metrics.Deliveries.WithLabelValues(d.Sink, "dead").Inc()
			if err := w.outbox.Delete(ctx, sessionID, d.Sink); err != nil {
				return delivered, err
			}
			continue
		}

		metrics.Deliveries.WithLabelValues(d.Sink, "retry").Inc()
		next := w.now().UTC().Add(Backoff(w.cfg.BaseDelay, w.cfg.MaxDelay, attempts))
		if err := w.outbox.Reschedule(ctx, sessionID, d.Sink, attempts, next, deliverErr.Error()); err != nil {
			return delivered, err
		}
	}

	w.refreshPending(ctx)
	if delivered > 0 {
		log.Printf("[OUTBOX] Redelivered %d of %d due rows", delivered, len(due))
	}
	return delivered, nil
}

func (w *ExportWorker) refreshPending(ctx context.Context) {
	if n, err := w.outbox.Pending(context.WithoutCancel(ctx)); err == nil {
		metrics.OutboxPending.Set(float64(n))
	}
}

// Backoff returns base * 2^(attempt-1), capped at ceiling.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/outbox"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/workers"
)

var errUnavailable = errors.New("sink unavailable")

type fakeSink struct {
	name     string
	mu       sync.Mutex
	failures int
	received []string
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Deliver(ctx context.Context, record domain.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errUnavailable
	}
	s.received = append(s.received, record.SessionID)
	return nil
}

func (s *fakeSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() workers.ExportConfig {
	cfg := workers.DefaultExportConfig()
	cfg.RetryInterval = 10 * time.Millisecond
	cfg.RetriesPerSecond = 1000
	return cfg
}

func newWorker(t *testing.T, cfg workers.ExportConfig, sinks ...domain.CompletionSink) (*workers.ExportWorker, *outbox.SQLiteOutbox, *testClock) {
	t.Helper()
	box, err := outbox.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { box.Close() })

	clock := &testClock{t: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}
	w := workers.NewExportWorker(box, cfg, sinks...).WithClock(clock.now)
	return w, box, clock
}

func record(id string) domain.CompletionRecord {
	return domain.CompletionRecord{SessionID: id, UserID: "u1", Status: domain.SessionCompleted, IsCompleted: true}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{9, 256 * time.Second},
		{10, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, workers.Backoff(time.Second, 5*time.Minute, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExportWorker_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Every sink receives the record", func(t *testing.T) {
		history := &fakeSink{name: "history"}
		redis := &fakeSink{name: "redis"}
		w, box, _ := newWorker(t, testConfig(), history, redis)

		w.Deliver(ctx, record("s1"))

		assert.Equal(t, []string{"s1"}, history.got())
		assert.Equal(t, []string{"s1"}, redis.got())
		n, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Success: Failing sink is parked with backoff", func(t *testing.T) {
		history := &fakeSink{name: "history"}
		redis := &fakeSink{name: "redis", failures: 1}
		w, box, clock := newWorker(t, testConfig(), history, redis)

		w.Deliver(ctx, record("s1"))

		assert.Equal(t, []string{"s1"}, history.got())
		assert.Empty(t, redis.got())

		due, err := box.Due(ctx, clock.now(), 10)
		require.NoError(t, err)
		assert.Empty(t, due, "first retry waits one backoff step")

		due, err = box.Due(ctx, clock.now().Add(time.Second), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "redis", due[0].Sink)
		assert.Equal(t, 1, due[0].Attempts)
		assert.Equal(t, errUnavailable.Error(), due[0].LastError)
	})
}

func TestExportWorker_RetryDue(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Recovered sink drains the outbox", func(t *testing.T) {
		redis := &fakeSink{name: "redis", failures: 2}
		w, box, clock := newWorker(t, testConfig(), redis)

		w.Deliver(ctx, record("s1"))

		clock.advance(time.Second)
		n, err := w.RetryDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		due, err := box.Due(ctx, clock.now().Add(2*time.Second), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 2, due[0].Attempts)

		clock.advance(2 * time.Second)
		n, err = w.RetryDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"s1"}, redis.got())

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("Success: Gives up after max attempts", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxAttempts = 3
		redis := &fakeSink{name: "redis", failures: -1}
		w, box, clock := newWorker(t, cfg, redis)

		w.Deliver(ctx, record("s1"))
		for i := 0; i < 3; i++ {
			clock.advance(time.Hour)
			_, err := w.RetryDue(ctx)
			require.NoError(t, err)
		}

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
		assert.Empty(t, redis.got())
	})

	t.Run("Success: Rows for unknown sinks are dropped", func(t *testing.T) {
		w, box, clock := newWorker(t, testConfig(), &fakeSink{name: "redis"})
		require.NoError(t, box.Put(ctx, domain.PendingDelivery{Sink: "webhook", Record: record("s1"), NextAttemptAt: clock.now()}))

		n, err := w.RetryDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})
}

func TestExportWorker_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Full queue parks every sink", func(t *testing.T) {
		cfg := testConfig()
		cfg.QueueSize = 0
		w, box, _ := newWorker(t, cfg, &fakeSink{name: "history"}, &fakeSink{name: "redis"})

		require.NoError(t, w.Enqueue(record("s1")))

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, pending)
	})

	t.Run("Success: Running worker delivers in background", func(t *testing.T) {
		redis := &fakeSink{name: "redis"}
		w, _, _ := newWorker(t, testConfig(), redis)

		runCtx, cancel := context.WithCancel(ctx)
		w.Start(runCtx)

		require.NoError(t, w.Enqueue(record("s1")))
		assert.Eventually(t, func() bool { return len(redis.got()) == 1 }, time.Second, 10*time.Millisecond)

		cancel()
		w.Wait()
	})
}

func TestExportWorker_Park(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Only the named sink gets the record", func(t *testing.T) {
		history := &fakeSink{name: domain.HistorySink}
		redis := &fakeSink{name: "redis"}
		w, box, _ := newWorker(t, testConfig(), history, redis)

		require.NoError(t, w.Park(record("s1"), domain.HistorySink))

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)

		delivered, err := w.RetryDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, delivered)
		assert.Equal(t, []string{"s1"}, history.got())
		assert.Empty(t, redis.got())
	})

	t.Run("Error: Unknown sink", func(t *testing.T) {
		w, box, _ := newWorker(t, testConfig(), &fakeSink{name: "redis"})

		err := w.Park(record("s1"), domain.HistorySink)
		assert.ErrorIs(t, err, workers.ErrUnknownSink)

		pending, err := box.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})
}

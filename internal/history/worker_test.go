package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	mu       sync.Mutex
	name     string
	failures int
	calls    int
	stored   []Record
}

func (s *flakySink) Name() string { return s.name }

func (s *flakySink) Store(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	s.stored = append(s.stored, rec)
	return nil
}

func (s *flakySink) snapshot() (int, []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]Record(nil), s.stored...)
}

func fastWorker(size int, sinks ...Sink) *Worker {
	w := NewWorker(size, zerolog.Nop(), sinks...)
	w.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(storeAttempts-1, retry.NewConstant(time.Millisecond))
	}
	return w
}

func record(round int) Record {
	return Record{ID: uuid.New(), RoomID: uuid.New(), Round: round, Reason: ReasonCompleted}
}

func TestWorkerRetriesFlakySink(t *testing.T) {
	sink := &flakySink{name: "pg", failures: 2}
	w := fastWorker(4, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	rec := record(1)
	w.Record(rec)
	require.Eventually(t, func() bool {
		_, stored := sink.snapshot()
		return len(stored) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	calls, stored := sink.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, rec.ID, stored[0].ID)
}

func TestWorkerOneSinkFailingDoesNotBlockOthers(t *testing.T) {
	broken := &flakySink{name: "archive", failures: 100}
	pg := &flakySink{name: "pg"}
	w := fastWorker(4, broken, pg)

	w.store(context.Background(), record(1))

	calls, _ := broken.snapshot()
	assert.Equal(t, storeAttempts, calls)
	_, stored := pg.snapshot()
	assert.Len(t, stored, 1)
}

func TestWorkerRecordNeverBlocks(t *testing.T) {
	sink := &flakySink{name: "pg"}
	w := fastWorker(1, sink)

	w.Record(record(1))
	w.Record(record(2)) // dropped

	assert.Len(t, w.queue, 1)
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	sink := &flakySink{name: "pg"}
	w := fastWorker(8, sink)
	for i := 1; i <= 3; i++ {
		w.Record(record(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	_, stored := sink.snapshot()
	assert.Len(t, stored, 3)
}

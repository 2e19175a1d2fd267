package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/codearena/internal/metrics"
)

const (
	defaultQueueSize = 128
	storeAttempts    = 5
	drainTimeout     = 10 * time.Second
)

// Sink persists finished rounds.
type Sink interface {
	Name() string
	Store(ctx context.Context, rec Record) error
}

// Worker fans records out to sinks from one goroutine so the room actors
// never wait on storage.
type Worker struct {
	queue   chan Record
	sinks   []Sink
	backoff func() retry.Backoff
	logger  zerolog.Logger
}

// NewWorker creates a worker buffering up to queueSize records.
func NewWorker(queueSize int, logger zerolog.Logger, sinks ...Sink) *Worker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Worker{
		queue: make(chan Record, queueSize),
		sinks: sinks,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(storeAttempts-1, retry.NewExponential(250*time.Millisecond))
		},
		logger: logger.With().Str("component", "history_worker").Logger(),
	}
}

// Record queues rec. It never blocks; a full queue drops the record.
func (w *Worker) Record(rec Record) {
	select {
	case w.queue <- rec:
	default:
		metrics.HistoryFailures.WithLabelValues("queue").Inc()
		w.logger.Error().
			Str("room_id", rec.RoomID.String()).
			Int("round", rec.Round).
			Msg("history queue full, dropping record")
	}
}

// Run stores queued records until ctx is done, then drains what is left.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case rec := <-w.queue:
			w.store(ctx, rec)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case rec := <-w.queue:
			w.store(ctx, rec)
		default:
			return
		}
	}
}

func (w *Worker) store(ctx context.Context, rec Record) {
	for _, sink := range w.sinks {
		err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
			if err := sink.Store(ctx, rec); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			metrics.HistoryFailures.WithLabelValues(sink.Name()).Inc()
			w.logger.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("room_id", rec.RoomID.String()).
				Int("round", rec.Round).
				Msg("round record not stored")
			continue
		}
		w.logger.Debug().Str("sink", sink.Name()).Str("record_id", rec.ID.String()).Msg("round record stored")
	}
}

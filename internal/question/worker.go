package question

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WarmWorker refills question pools in the background: on start, on every
// tick, and whenever Pick sees a pool running low. Pools that stay empty
// are handed to the generator so later rounds find something.
type WarmWorker struct {
	service   *Service
	generator Generator
	interval  time.Duration
	timeout   time.Duration
	batch     int
	logger    zerolog.Logger
}

func NewWarmWorker(service *Service, generator Generator, interval, timeout time.Duration, logger zerolog.Logger) *WarmWorker {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &WarmWorker{
		service:   service,
		generator: generator,
		interval:  interval,
		timeout:   timeout,
		batch:     5,
		logger:    logger.With().Str("component", "question_warmer").Logger(),
	}
}

// Run blocks until ctx is done.
func (w *WarmWorker) Run(ctx context.Context) error {
	for _, c := range AllCriteria() {
		w.warm(ctx, c)
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("question warmer stopping")
			return ctx.Err()
		case c := <-w.service.WarmRequests():
			w.warm(ctx, c)
		case <-tick:
			for _, c := range AllCriteria() {
				w.warm(ctx, c)
			}
		}
	}
}

func (w *WarmWorker) warm(ctx context.Context, c Criteria) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.service.Refresh(ctx, c)
	if err != nil {
		w.logger.Warn().Err(err).Str("difficulty", c.Difficulty).Str("question_type", c.QuestionType).Msg("pool refresh failed")
		return
	}
	if n > w.service.opts.LowWater || w.generator == nil {
		return
	}
	if err := w.generator.Enqueue(ctx, c, w.batch); err != nil {
		w.logger.Error().Err(err).Str("difficulty", c.Difficulty).Str("question_type", c.QuestionType).Msg("generator enqueue failed")
	}
}

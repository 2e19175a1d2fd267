package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/db/repository"
)

// Ranker reads the live standings.
type Ranker interface {
	Top(ctx context.Context, limit int) ([]Entry, error)
}

// SnapshotStore persists and reloads standings.
type SnapshotStore interface {
	Save(ctx context.Context, takenAt time.Time, standings []repository.Standing) error
	Latest(ctx context.Context) ([]repository.Standing, error)
}

// SnapshotWorker periodically persists the Redis leaderboard into Postgres.
type SnapshotWorker struct {
	ranker   Ranker
	store    SnapshotStore
	logger   zerolog.Logger
	interval time.Duration
	topN     int
	now      func() time.Time
}

func NewSnapshotWorker(ranker Ranker, store SnapshotStore, interval time.Duration, topN int, logger zerolog.Logger) *SnapshotWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if topN <= 0 {
		topN = 50
	}
	return &SnapshotWorker{
		ranker:   ranker,
		store:    store,
		logger:   logger.With().Str("component", "leaderboard_snapshot_worker").Logger(),
		interval: interval,
		topN:     topN,
		now:      time.Now,
	}
}

// Run blocks until context cancellation.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	if w.ranker == nil || w.store == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	if err := w.snapshot(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("snapshot failed")
	}
}

func (w *SnapshotWorker) snapshot(ctx context.Context) error {
	entries, err := w.ranker.Top(ctx, w.topN)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	now := w.now().UTC()
	if err := w.store.Save(ctx, now, toStandings(entries)); err != nil {
		return err
	}

	w.logger.Info().
		Int("entries", len(entries)).
		Time("taken_at", now).
		Msg("leaderboard snapshot persisted")
	return nil
}

func toStandings(entries []Entry) []repository.Standing {
	out := make([]repository.Standing, len(entries))
	for i, e := range entries {
		out[i] = repository.Standing{
			Rank:        e.Rank,
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			TotalScore:  e.TotalScore,
			GamesPlayed: e.GamesPlayed,
			Wins:        e.Wins,
		}
	}
	return out
}

func fromStandings(standings []repository.Standing) []Entry {
	out := make([]Entry, len(standings))
	for i, s := range standings {
		out[i] = Entry{
			Rank:        s.Rank,
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			TotalScore:  s.TotalScore,
			GamesPlayed: s.GamesPlayed,
			Wins:        s.Wins,
		}
	}
	return out
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/codearena/internal/db/queries"
)

// Standing is one leaderboard row as persisted in a snapshot.
type Standing struct {
	Rank        int
	UserID      uuid.UUID
	DisplayName string
	TotalScore  int
	GamesPlayed int
	Wins        int
}

type snapshotStore interface {
	InsertLeaderboardSnapshot(ctx context.Context, arg queries.InsertLeaderboardSnapshotParams) error
	LatestLeaderboardSnapshot(ctx context.Context) ([]queries.LeaderboardSnapshot, error)
}

// SnapshotRepository persists periodic copies of the Redis leaderboard.
type SnapshotRepository struct {
	store snapshotStore
}

func NewSnapshotRepository(store snapshotStore) *SnapshotRepository {
	return &SnapshotRepository{store: store}
}

// Save writes every standing under the same takenAt.
func (r *SnapshotRepository) Save(ctx context.Context, takenAt time.Time, standings []Standing) error {
	for _, s := range standings {
		if err := r.store.InsertLeaderboardSnapshot(ctx, queries.InsertLeaderboardSnapshotParams{
			TakenAt:     pgTime(takenAt),
			Rank:        int32(s.Rank),
			UserID:      pgUUID(s.UserID),
			DisplayName: s.DisplayName,
			TotalScore:  int32(s.TotalScore),
			GamesPlayed: int32(s.GamesPlayed),
			Wins:        int32(s.Wins),
		}); err != nil {
			return fmt.Errorf("insert standing %d: %w", s.Rank, err)
		}
	}
	return nil
}

// Latest returns the most recent snapshot in rank order.
func (r *SnapshotRepository) Latest(ctx context.Context) ([]Standing, error) {
	rows, err := r.store.LatestLeaderboardSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	out := make([]Standing, len(rows))
	for i, row := range rows {
		out[i] = Standing{
			Rank:        int(row.Rank),
			UserID:      fromPgUUID(row.UserID),
			DisplayName: row.DisplayName,
			TotalScore:  int(row.TotalScore),
			GamesPlayed: int(row.GamesPlayed),
			Wins:        int(row.Wins),
		}
	}
	return out, nil
}

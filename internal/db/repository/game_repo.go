package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gokatarajesh/codearena/internal/db/queries"
	"github.com/gokatarajesh/codearena/internal/history"
)

type gameStore interface {
	InsertGame(ctx context.Context, arg queries.InsertGameParams) (int64, error)
	InsertGameParticipant(ctx context.Context, arg queries.InsertGameParticipantParams) error
	ListGamesByRoom(ctx context.Context, roomID pgtype.UUID) ([]queries.Game, error)
	ListGameParticipants(ctx context.Context, gameIDs []pgtype.UUID) ([]queries.GameParticipant, error)
}

// GameRepository stores finished rounds, closing rosters and late submissions. It is the Postgres history sink
// and backs the games listing.
type GameRepository struct {
	store gameStore
	inTx  func(ctx context.Context, fn func(gameStore) error) error
}

var (
	_ history.Sink   = (*GameRepository)(nil)
	_ history.Reader = (*GameRepository)(nil)
)

// NewGameRepository runs every write directly against store.
func NewGameRepository(store gameStore) *GameRepository {
	return &GameRepository{
		store: store,
		inTx: func(_ context.Context, fn func(gameStore) error) error {
			return fn(store)
		},
	}
}

// NewPostgresGameRepository writes each round and its roster in one transaction.
func NewPostgresGameRepository(pool *pgxpool.Pool) *GameRepository {
	q := queries.New(pool)
	return &GameRepository{
		store: q,
		inTx: func(ctx context.Context, fn func(gameStore) error) error {
			return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
				return fn(q.WithTx(tx))
			})
		},
	}
}

func (r *GameRepository) Name() string { return "postgres" }

// Store saves rec. Records already present are skipped so retries are safe.
func (r *GameRepository) Store(ctx context.Context, rec history.Record) error {
	return r.inTx(ctx, func(s gameStore) error {
		inserted, err := s.InsertGame(ctx, queries.InsertGameParams{
			GameID:        pgUUID(rec.ID),
			RoomID:        pgUUID(rec.RoomID),
			Round:         int32(rec.Round),
			JoinCode:      rec.JoinCode,
			HostID:        pgUUID(rec.HostID),
			Mode:          rec.Mode,
			Difficulty:    rec.Difficulty,
			Tier:          rec.Tier,
			QuestionID:    pgUUID(rec.QuestionID),
			QuestionTitle: rec.QuestionTitle,
			WinnerID:      pgUUIDPtr(rec.WinnerID),
			WinnerName:    rec.WinnerName,
			EndReason:     rec.Reason,
			StartedAt:     pgTime(rec.StartedAt),
			EndedAt:       pgTime(rec.EndedAt),
			Detail:        rec.Detail,
			Kind:          recordKind(rec),
		})
		if err != nil {
			return fmt.Errorf("insert game %s: %w", rec.ID, err)
		}
		if inserted == 0 {
			return nil
		}

		for _, p := range rec.Participants {
			if err := s.InsertGameParticipant(ctx, queries.InsertGameParticipantParams{
				GameID:          pgUUID(rec.ID),
				UserID:          pgUUID(p.UserID),
				DisplayName:     p.DisplayName,
				Submitted:       p.Submitted,
				IsCorrect:       p.IsCorrect,
				Disqualified:    p.Disqualified,
				Score:           int32(p.Score),
				ExecutionTimeMs: p.ExecutionTimeMs,
				CodeLength:      int32(p.CodeLength),
				Language:        p.Language,
			}); err != nil {
				return fmt.Errorf("insert participant %s: %w", p.UserID, err)
			}
		}
		return nil
	})
}

func recordKind(rec history.Record) string {
	if rec.Kind == "" {
		return history.KindRound
	}
	return rec.Kind
}

// ListByRoom returns the stored rounds of a room in round order.
func (r *GameRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]history.Record, error) {
	games, err := r.store.ListGamesByRoom(ctx, pgUUID(roomID))
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	if len(games) == 0 {
		return []history.Record{}, nil
	}

	ids := make([]pgtype.UUID, len(games))
	for i, g := range games {
		ids[i] = g.GameID
	}
	rows, err := r.store.ListGameParticipants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	byGame := make(map[uuid.UUID][]history.Participant, len(games))
	for _, p := range rows {
		id := fromPgUUID(p.GameID)
		byGame[id] = append(byGame[id], history.Participant{
			UserID:          fromPgUUID(p.UserID),
			DisplayName:     p.DisplayName,
			Submitted:       p.Submitted,
			IsCorrect:       p.IsCorrect,
			Disqualified:    p.Disqualified,
			Score:           int(p.Score),
			ExecutionTimeMs: p.ExecutionTimeMs,
			CodeLength:      int(p.CodeLength),
			Language:        p.Language,
		})
	}

	out := make([]history.Record, len(games))
	for i, g := range games {
		id := fromPgUUID(g.GameID)
		out[i] = history.Record{
			ID:            id,
			RoomID:        fromPgUUID(g.RoomID),
			Round:         int(g.Round),
			JoinCode:      g.JoinCode,
			HostID:        fromPgUUID(g.HostID),
			Mode:          g.Mode,
			Difficulty:    g.Difficulty,
			Tier:          g.Tier,
			QuestionID:    fromPgUUID(g.QuestionID),
			QuestionTitle: g.QuestionTitle,
			WinnerID:      fromPgUUIDPtr(g.WinnerID),
			WinnerName:    g.WinnerName,
			Reason:        g.EndReason,
			Participants:  byGame[id],
			StartedAt:     g.StartedAt.Time,
			EndedAt:       g.EndedAt.Time,
			Detail:        g.Detail,
			Kind:          g.Kind,
		}
	}
	return out, nil
}

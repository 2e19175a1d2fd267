package queries

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertLeaderboardSnapshot = `-- name: InsertLeaderboardSnapshot :exec
INSERT INTO leaderboard_snapshots (taken_at, rank, user_id, display_name, total_score, games_played, wins)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

type InsertLeaderboardSnapshotParams struct {
	TakenAt     pgtype.Timestamptz
	Rank        int32
	UserID      pgtype.UUID
	DisplayName string
	TotalScore  int32
	GamesPlayed int32
	Wins        int32
}

func (q *Queries) InsertLeaderboardSnapshot(ctx context.Context, arg InsertLeaderboardSnapshotParams) error {
	_, err := q.db.Exec(ctx, insertLeaderboardSnapshot,
		arg.TakenAt,
		arg.Rank,
		arg.UserID,
		arg.DisplayName,
		arg.TotalScore,
		arg.GamesPlayed,
		arg.Wins,
	)
	return err
}

const latestLeaderboardSnapshot = `-- name: LatestLeaderboardSnapshot :many
SELECT snapshot_id, taken_at, rank, user_id, display_name, total_score, games_played, wins
FROM leaderboard_snapshots
WHERE taken_at = (SELECT max(taken_at) FROM leaderboard_snapshots)
ORDER BY rank`

func (q *Queries) LatestLeaderboardSnapshot(ctx context.Context) ([]LeaderboardSnapshot, error) {
	rows, err := q.db.Query(ctx, latestLeaderboardSnapshot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LeaderboardSnapshot
	for rows.Next() {
		var i LeaderboardSnapshot
		if err := rows.Scan(
			&i.SnapshotID,
			&i.TakenAt,
			&i.Rank,
			&i.UserID,
			&i.DisplayName,
			&i.TotalScore,
			&i.GamesPlayed,
			&i.Wins,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

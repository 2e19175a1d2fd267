package queries

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertGame = `-- name: InsertGame :execrows
INSERT INTO games (game_id, room_id, round, join_code, host_id, mode, difficulty, tier,
                   question_id, question_title, winner_id, winner_name, end_reason,
                   started_at, ended_at, detail, kind)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (game_id) DO NOTHING`

type InsertGameParams struct {
	GameID        pgtype.UUID
	RoomID        pgtype.UUID
	Round         int32
	JoinCode      string
	HostID        pgtype.UUID
	Mode          string
	Difficulty    string
	Tier          string
	QuestionID    pgtype.UUID
	QuestionTitle string
	WinnerID      pgtype.UUID
	WinnerName    string
	EndReason     string
	StartedAt     pgtype.Timestamptz
	EndedAt       pgtype.Timestamptz
	Detail        []byte
	Kind          string
}

// InsertGame reports zero rows when the game was already stored.
func (q *Queries) InsertGame(ctx context.Context, arg InsertGameParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertGame,
		arg.GameID,
		arg.RoomID,
		arg.Round,
		arg.JoinCode,
		arg.HostID,
		arg.Mode,
		arg.Difficulty,
		arg.Tier,
		arg.QuestionID,
		arg.QuestionTitle,
		arg.WinnerID,
		arg.WinnerName,
		arg.EndReason,
		arg.StartedAt,
		arg.EndedAt,
		arg.Detail,
		arg.Kind,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const insertGameParticipant = `-- name: InsertGameParticipant :exec
INSERT INTO game_participants (game_id, user_id, display_name, submitted, is_correct,
                               disqualified, score, execution_time_ms, code_length, language)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (game_id, user_id) DO NOTHING`

type InsertGameParticipantParams struct {
	GameID          pgtype.UUID
	UserID          pgtype.UUID
	DisplayName     string
	Submitted       bool
	IsCorrect       bool
	Disqualified    bool
	Score           int32
	ExecutionTimeMs int64
	CodeLength      int32
	Language        string
}

func (q *Queries) InsertGameParticipant(ctx context.Context, arg InsertGameParticipantParams) error {
	_, err := q.db.Exec(ctx, insertGameParticipant,
		arg.GameID,
		arg.UserID,
		arg.DisplayName,
		arg.Submitted,
		arg.IsCorrect,
		arg.Disqualified,
		arg.Score,
		arg.ExecutionTimeMs,
		arg.CodeLength,
		arg.Language,
	)
	return err
}

const listGamesByRoom = `-- name: ListGamesByRoom :many
SELECT game_id, room_id, round, join_code, host_id, mode, difficulty, tier, question_id,
       question_title, winner_id, winner_name, end_reason, started_at, ended_at, detail, kind
FROM games
WHERE room_id = $1
ORDER BY round, ended_at`

func (q *Queries) ListGamesByRoom(ctx context.Context, roomID pgtype.UUID) ([]Game, error) {
	rows, err := q.db.Query(ctx, listGamesByRoom, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Game
	for rows.Next() {
		var i Game
		if err := rows.Scan(
			&i.GameID,
			&i.RoomID,
			&i.Round,
			&i.JoinCode,
			&i.HostID,
			&i.Mode,
			&i.Difficulty,
			&i.Tier,
			&i.QuestionID,
			&i.QuestionTitle,
			&i.WinnerID,
			&i.WinnerName,
			&i.EndReason,
			&i.StartedAt,
			&i.EndedAt,
			&i.Detail,
			&i.Kind,
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

const listGameParticipants = `-- name: ListGameParticipants :many
SELECT game_id, user_id, display_name, submitted, is_correct, disqualified, score,
       execution_time_ms, code_length, language
FROM game_participants
WHERE game_id = ANY($1::uuid[])
ORDER BY game_id, score DESC, display_name`

func (q *Queries) ListGameParticipants(ctx context.Context, gameIDs []pgtype.UUID) ([]GameParticipant, error) {
	rows, err := q.db.Query(ctx, listGameParticipants, gameIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GameParticipant
	for rows.Next() {
		var i GameParticipant
		if err := rows.Scan(
			&i.GameID,
			&i.UserID,
			&i.DisplayName,
			&i.Submitted,
			&i.IsCorrect,
			&i.Disqualified,
			&i.Score,
			&i.ExecutionTimeMs,
			&i.CodeLength,
			&i.Language,
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

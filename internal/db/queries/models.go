package queries

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Question struct {
	QuestionID            pgtype.UUID
	Title                 string
	Description           string
	Difficulty            string
	QuestionType          string
	TestCases             []byte
	RecommendedComplexity pgtype.Text
	StarterCode           pgtype.Text
	Source                string
	CreatedAt             pgtype.Timestamptz
}

type Game struct {
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

type GameParticipant struct {
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

type LeaderboardSnapshot struct {
	SnapshotID  int64
	TakenAt     pgtype.Timestamptz
	Rank        int32
	UserID      pgtype.UUID
	DisplayName string
	TotalScore  int32
	GamesPlayed int32
	Wins        int32
}

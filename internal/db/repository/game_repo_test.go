package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/codearena/internal/db/queries"
	"github.com/gokatarajesh/codearena/internal/history"
)

type mockGameStore struct {
	mock.Mock
}

func (m *mockGameStore) InsertGame(ctx context.Context, arg queries.InsertGameParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockGameStore) InsertGameParticipant(ctx context.Context, arg queries.InsertGameParticipantParams) error {
	return m.Called(ctx, arg).Error(0)
}

func (m *mockGameStore) ListGamesByRoom(ctx context.Context, roomID pgtype.UUID) ([]queries.Game, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]queries.Game), args.Error(1)
}

func (m *mockGameStore) ListGameParticipants(ctx context.Context, gameIDs []pgtype.UUID) ([]queries.GameParticipant, error) {
	args := m.Called(ctx, gameIDs)
	return args.Get(0).([]queries.GameParticipant), args.Error(1)
}

func sampleRecord() history.Record {
	winner := uuidFromByte(3)
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return history.Record{
		ID:            uuidFromByte(1),
		RoomID:        uuidFromByte(2),
		Round:         1,
		JoinCode:      "ABC123",
		HostID:        winner,
		Mode:          "normal",
		Difficulty:    "easy",
		Tier:          "beginner",
		QuestionID:    uuidFromByte(9),
		QuestionTitle: "Sum",
		WinnerID:      &winner,
		WinnerName:    "host",
		Reason:        history.ReasonCompleted,
		Participants: []history.Participant{
			{UserID: winner, DisplayName: "host", Submitted: true, IsCorrect: true, Score: 118, ExecutionTimeMs: 100, CodeLength: 12, Language: "python"},
			{UserID: uuidFromByte(4), DisplayName: "p2"},
		},
		StartedAt: start,
		EndedAt:   start.Add(time.Minute),
	}
}

func TestGameRepository_StoreWritesGameAndRoster(t *testing.T) {
	store := new(mockGameStore)
	repo := NewGameRepository(store)
	rec := sampleRecord()

	store.On("InsertGame", mock.Anything, mock.MatchedBy(func(p queries.InsertGameParams) bool {
		return p.GameID == pgUUIDFromByte(1) && p.WinnerID == pgUUIDFromByte(3) && p.EndReason == history.ReasonCompleted
	})).Return(int64(1), nil)
	store.On("InsertGameParticipant", mock.Anything, mock.MatchedBy(func(p queries.InsertGameParticipantParams) bool {
		return p.GameID == pgUUIDFromByte(1)
	})).Return(nil).Twice()

	require.NoError(t, repo.Store(context.Background(), rec))
	store.AssertExpectations(t)
	assert.Equal(t, "postgres", repo.Name())
}

func TestGameRepository_StoreTagsRecordKind(t *testing.T) {
	store := new(mockGameStore)
	repo := NewGameRepository(store)

	late := sampleRecord()
	late.Kind = history.KindLate
	late.WinnerID = nil

	store.On("InsertGame", mock.Anything, mock.MatchedBy(func(p queries.InsertGameParams) bool {
		return p.Kind == history.KindRound
	})).Return(int64(1), nil).Once()
	store.On("InsertGame", mock.Anything, mock.MatchedBy(func(p queries.InsertGameParams) bool {
		return p.Kind == history.KindLate && !p.WinnerID.Valid
	})).Return(int64(1), nil).Once()
	store.On("InsertGameParticipant", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, repo.Store(context.Background(), sampleRecord()))
	require.NoError(t, repo.Store(context.Background(), late))
	store.AssertExpectations(t)
}

func TestGameRepository_StoreSkipsExistingGame(t *testing.T) {
	store := new(mockGameStore)
	repo := NewGameRepository(store)

	store.On("InsertGame", mock.Anything, mock.Anything).Return(int64(0), nil)

	require.NoError(t, repo.Store(context.Background(), sampleRecord()))
	store.AssertNotCalled(t, "InsertGameParticipant", mock.Anything, mock.Anything)
}

func TestGameRepository_StoreWrapsErrors(t *testing.T) {
	store := new(mockGameStore)
	repo := NewGameRepository(store)
	boom := errors.New("conn reset")

	store.On("InsertGame", mock.Anything, mock.Anything).Return(int64(0), boom)

	err := repo.Store(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, boom)
}

func TestGameRepository_ListByRoomJoinsParticipants(t *testing.T) {
	store := new(mockGameStore)
	repo := NewGameRepository(store)
	roomID := uuidFromByte(2)

	games := []queries.Game{
		{GameID: pgUUIDFromByte(1), RoomID: pgUUIDFromByte(2), Round: 1, WinnerID: pgUUIDFromByte(3), EndReason: "completed"},
		{GameID: pgUUIDFromByte(5), RoomID: pgUUIDFromByte(2), Round: 2, EndReason: "time_expired"},
	}
	parts := []queries.GameParticipant{
		{GameID: pgUUIDFromByte(1), UserID: pgUUIDFromByte(3), DisplayName: "host", IsCorrect: true, Score: 118},
		{GameID: pgUUIDFromByte(5), UserID: pgUUIDFromByte(3), DisplayName: "host"},
	}
	store.On("ListGamesByRoom", mock.Anything, pgUUIDFromByte(2)).Return(games, nil)
	store.On("ListGameParticipants", mock.Anything, []pgtype.UUID{pgUUIDFromByte(1), pgUUIDFromByte(5)}).Return(parts, nil)

	recs, err := repo.ListByRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NotNil(t, recs[0].WinnerID)
	assert.Equal(t, uuidFromByte(3), *recs[0].WinnerID)
	assert.Equal(t, 118, recs[0].Participants[0].Score)
	assert.Nil(t, recs[1].WinnerID)
	assert.Len(t, recs[1].Participants, 1)
}

func TestGameRepository_ListByRoomEmpty(t *testing.T) {
	store := new(mockGameStore)
	repo := NewGameRepository(store)

	store.On("ListGamesByRoom", mock.Anything, mock.Anything).Return([]queries.Game(nil), nil)

	recs, err := repo.ListByRoom(context.Background(), uuidFromByte(7))
	require.NoError(t, err)
	assert.Empty(t, recs)
	store.AssertNotCalled(t, "ListGameParticipants", mock.Anything, mock.Anything)
}

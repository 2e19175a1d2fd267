//go:build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gokatarajesh/codearena/db/migrations"
	"github.com/gokatarajesh/codearena/internal/db/queries"
	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/question"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("codearena"),
		postgres.WithUsername("codearena"),
		postgres.WithPassword("codearena"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		panic(err)
	}
	if err := migrations.Up(db); err != nil {
		panic(err)
	}
	db.Close()

	pool, err = pgxpool.New(ctx, connString)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresGameRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresGameRepository(pool)
	rec := sampleRecord()
	rec.ID = uuid.New()
	rec.RoomID = uuid.New()
	rec.QuestionID = uuid.Nil
	rec.Detail = []byte(`{"late_submissions":[]}`)

	t.Run("Store", func(t *testing.T) {
		require.NoError(t, repo.Store(ctx, rec))
	})

	t.Run("StoreTwiceIsNoop", func(t *testing.T) {
		require.NoError(t, repo.Store(ctx, rec))
	})

	t.Run("ListByRoom", func(t *testing.T) {
		recs, err := repo.ListByRoom(ctx, rec.RoomID)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		got := recs[0]
		assert.Equal(t, rec.ID, got.ID)
		require.NotNil(t, got.WinnerID)
		assert.Equal(t, *rec.WinnerID, *got.WinnerID)
		assert.Len(t, got.Participants, 2)
		assert.Equal(t, 118, got.Participants[0].Score)
		assert.True(t, rec.EndedAt.Equal(got.EndedAt))
	})
}

func TestPostgresQuestionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewQuestionRepository(queries.New(pool))

	t.Run("SeededRandom", func(t *testing.T) {
		q, err := repo.Random(ctx, question.Criteria{Difficulty: "easy", QuestionType: "normal"})
		require.NoError(t, err)
		assert.NotEmpty(t, q.TestCases)
	})

	t.Run("CreateGetDelete", func(t *testing.T) {
		created, err := repo.Create(ctx, question.Draft{
			Title:       "Echo",
			Description: "print the input",
			Difficulty:  "hard",
			TestCases:   []execution.TestCase{{Input: "x", ExpectedOutput: "x"}},
		}, question.SourceCurated)
		require.NoError(t, err)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Echo", got.Title)

		require.NoError(t, repo.Delete(ctx, created.ID))
		_, err = repo.Get(ctx, created.ID)
		assert.ErrorIs(t, err, question.ErrNotFound)
	})

	t.Run("NoMatch", func(t *testing.T) {
		_, err := repo.Random(ctx, question.Criteria{Difficulty: "hard", QuestionType: "shortest"})
		assert.ErrorIs(t, err, question.ErrNoQuestion)
	})
}

func TestPostgresSnapshotRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotRepository(queries.New(pool))
	at := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Save(ctx, at, []Standing{
		{Rank: 1, UserID: uuid.New(), DisplayName: "a", TotalScore: 200, GamesPlayed: 2, Wins: 1},
	}))
	got, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 200, got[0].TotalScore)
}

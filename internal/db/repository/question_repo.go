package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gokatarajesh/codearena/internal/db/queries"
	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/question"
)

const defaultListLimit = 50

type questionStore interface {
	InsertQuestion(ctx context.Context, arg queries.InsertQuestionParams) (queries.Question, error)
	GetQuestion(ctx context.Context, questionID pgtype.UUID) (queries.Question, error)
	ListQuestions(ctx context.Context, arg queries.ListQuestionsParams) ([]queries.Question, error)
	RandomQuestion(ctx context.Context, difficulty, questionType string) (queries.Question, error)
	DeleteQuestion(ctx context.Context, questionID pgtype.UUID) (int64, error)
}

// QuestionRepository wraps the question queries for the problem source.
type QuestionRepository struct {
	store questionStore
}

var _ question.Store = (*QuestionRepository)(nil)

func NewQuestionRepository(store questionStore) *QuestionRepository {
	return &QuestionRepository{store: store}
}

// List returns questions matching f, oldest first.
func (r *QuestionRepository) List(ctx context.Context, f question.Filter) ([]question.Question, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.store.ListQuestions(ctx, queries.ListQuestionsParams{
		Difficulty:   pgText(f.Difficulty),
		QuestionType: pgText(f.QuestionType),
		Limit:        int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]question.Question, 0, len(rows))
	for _, row := range rows {
		q, err := toQuestion(row)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *QuestionRepository) Get(ctx context.Context, id uuid.UUID) (question.Question, error) {
	row, err := r.store.GetQuestion(ctx, pgUUID(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return question.Question{}, question.ErrNotFound
		}
		return question.Question{}, fmt.Errorf("get question %s: %w", id, err)
	}
	return toQuestion(row)
}

// Random picks one question for a round.
func (r *QuestionRepository) Random(ctx context.Context, c question.Criteria) (question.Question, error) {
	row, err := r.store.RandomQuestion(ctx, c.Difficulty, c.QuestionType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return question.Question{}, question.ErrNoQuestion
		}
		return question.Question{}, fmt.Errorf("random question: %w", err)
	}
	return toQuestion(row)
}

// Create inserts a validated draft.
func (r *QuestionRepository) Create(ctx context.Context, d question.Draft, source string) (question.Question, error) {
	cases, err := json.Marshal(d.TestCases)
	if err != nil {
		return question.Question{}, fmt.Errorf("encode test cases: %w", err)
	}
	qType := d.QuestionType
	if qType == "" {
		qType = question.TypeNormal
	}
	row, err := r.store.InsertQuestion(ctx, queries.InsertQuestionParams{
		Title:                 d.Title,
		Description:           d.Description,
		Difficulty:            d.Difficulty,
		QuestionType:          qType,
		TestCases:             cases,
		RecommendedComplexity: pgText(d.RecommendedComplexity),
		StarterCode:           pgText(d.StarterCode),
		Source:                source,
	})
	if err != nil {
		return question.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return toQuestion(row)
}

func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.store.DeleteQuestion(ctx, pgUUID(id))
	if err != nil {
		return fmt.Errorf("delete question %s: %w", id, err)
	}
	if n == 0 {
		return question.ErrNotFound
	}
	return nil
}

func toQuestion(row queries.Question) (question.Question, error) {
	var cases []execution.TestCase
	if len(row.TestCases) > 0 {
		if err := json.Unmarshal(row.TestCases, &cases); err != nil {
			return question.Question{}, fmt.Errorf("decode test cases of %s: %w", fromPgUUID(row.QuestionID), err)
		}
	}
	return question.Question{
		ID:                    fromPgUUID(row.QuestionID),
		Title:                 row.Title,
		Description:           row.Description,
		Difficulty:            row.Difficulty,
		QuestionType:          row.QuestionType,
		TestCases:             cases,
		RecommendedComplexity: row.RecommendedComplexity.String,
		StarterCode:           row.StarterCode.String,
		Source:                row.Source,
		CreatedAt:             row.CreatedAt.Time,
	}, nil
}

package queries

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const questionColumns = `question_id, title, description, difficulty, question_type, test_cases,
       recommended_complexity, starter_code, source, created_at`

func scanQuestion(row interface{ Scan(...interface{}) error }) (Question, error) {
	var i Question
	err := row.Scan(
		&i.QuestionID,
		&i.Title,
		&i.Description,
		&i.Difficulty,
		&i.QuestionType,
		&i.TestCases,
		&i.RecommendedComplexity,
		&i.StarterCode,
		&i.Source,
		&i.CreatedAt,
	)
	return i, err
}

const insertQuestion = `-- name: InsertQuestion :one
INSERT INTO questions (title, description, difficulty, question_type, test_cases,
                       recommended_complexity, starter_code, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + questionColumns

type InsertQuestionParams struct {
	Title                 string
	Description           string
	Difficulty            string
	QuestionType          string
	TestCases             []byte
	RecommendedComplexity pgtype.Text
	StarterCode           pgtype.Text
	Source                string
}

func (q *Queries) InsertQuestion(ctx context.Context, arg InsertQuestionParams) (Question, error) {
	row := q.db.QueryRow(ctx, insertQuestion,
		arg.Title,
		arg.Description,
		arg.Difficulty,
		arg.QuestionType,
		arg.TestCases,
		arg.RecommendedComplexity,
		arg.StarterCode,
		arg.Source,
	)
	return scanQuestion(row)
}

const getQuestion = `-- name: GetQuestion :one
SELECT ` + questionColumns + `
FROM questions
WHERE question_id = $1`

func (q *Queries) GetQuestion(ctx context.Context, questionID pgtype.UUID) (Question, error) {
	return scanQuestion(q.db.QueryRow(ctx, getQuestion, questionID))
}

const listQuestions = `-- name: ListQuestions :many
SELECT ` + questionColumns + `
FROM questions
WHERE ($1::text IS NULL OR difficulty = $1)
  AND ($2::text IS NULL OR question_type = $2)
ORDER BY created_at, question_id
LIMIT $3`

type ListQuestionsParams struct {
	Difficulty   pgtype.Text
	QuestionType pgtype.Text
	Limit        int32
}

func (q *Queries) ListQuestions(ctx context.Context, arg ListQuestionsParams) ([]Question, error) {
	rows, err := q.db.Query(ctx, listQuestions, arg.Difficulty, arg.QuestionType, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Question
	for rows.Next() {
		i, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const randomQuestion = `-- name: RandomQuestion :one
SELECT ` + questionColumns + `
FROM questions
WHERE difficulty = $1
  AND question_type = $2
ORDER BY random()
LIMIT 1`

func (q *Queries) RandomQuestion(ctx context.Context, difficulty, questionType string) (Question, error) {
	return scanQuestion(q.db.QueryRow(ctx, randomQuestion, difficulty, questionType))
}

const deleteQuestion = `-- name: DeleteQuestion :execrows
DELETE FROM questions
WHERE question_id = $1`

func (q *Queries) DeleteQuestion(ctx context.Context, questionID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteQuestion, questionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

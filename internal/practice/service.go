// Package practice runs code outside any room: free-form runs with custom
// stdin, and graded attempts against a stored question.
package practice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/metrics"
	"github.com/gokatarajesh/codearena/internal/question"
	"github.com/gokatarajesh/codearena/internal/verdict"
)

// Sandbox runs code both ways.
type Sandbox interface {
	execution.Executor
	execution.Runner
}

// Questions looks up the question a practice attempt targets.
type Questions interface {
	Get(ctx context.Context, id uuid.UUID) (question.Question, error)
}

// Result is a graded practice attempt.
type Result struct {
	QuestionID      uuid.UUID              `json:"question_id"`
	IsCorrect       bool                   `json:"is_correct"`
	Feedback        string                 `json:"feedback"`
	Passed          int                    `json:"passed"`
	Total           int                    `json:"total"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Cases           []execution.CaseResult `json:"cases,omitempty"`
}

type Service struct {
	sandbox   Sandbox
	questions Questions
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewService(sandbox Sandbox, questions Questions, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Service{
		sandbox:   sandbox,
		questions: questions,
		timeout:   timeout,
		logger:    logger.With().Str("component", "practice").Logger(),
	}
}

// Run executes code once with stdin. Sandbox failures are returned.
func (s *Service) Run(ctx context.Context, code, language, stdin string) (execution.RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sandbox.Run(ctx, code, language, stdin)
}

// Submit grades code against every test case of the question. A sandbox
// failure is reported as an incorrect attempt, the same as in a room.
func (s *Service) Submit(ctx context.Context, questionID uuid.UUID, code, language string) (Result, error) {
	q, err := s.questions.Get(ctx, questionID)
	if err != nil {
		return Result{}, err
	}
	if len(q.TestCases) == 0 {
		return Result{}, fmt.Errorf("question %s has no test cases: %w", questionID, question.ErrNoQuestion)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.sandbox.Execute(ctx, code, language, q.TestCases)
	if err != nil {
		if errors.Is(err, execution.ErrUnsupportedLanguage) {
			return Result{}, err
		}
		s.logger.Warn().Err(err).Str("question_id", questionID.String()).Msg("practice execution failed")
		v := verdict.ExecutionFailed()
		metrics.Submissions.WithLabelValues("practice", "execution_failed").Inc()
		return Result{QuestionID: questionID, Feedback: v.Feedback, Total: len(q.TestCases)}, nil
	}

	v := verdict.Reduce(report)
	outcome := "incorrect"
	if v.IsCorrect {
		outcome = "correct"
	}
	metrics.Submissions.WithLabelValues("practice", outcome).Inc()

	return Result{
		QuestionID:      questionID,
		IsCorrect:       v.IsCorrect,
		Feedback:        v.Feedback,
		Passed:          v.Passed,
		Total:           v.Total,
		ExecutionTimeMs: report.ExecutionTimeMs,
		Cases:           report.Cases,
	}, nil
}

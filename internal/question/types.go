package question

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gokatarajesh/codearena/internal/execution"
)

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question types line up with room modes.
const (
	TypeNormal    = "normal"
	TypeShortest  = "shortest"
	TypeDebugging = "debugging"
	TypeEscape    = "escape"
)

// Source values record where a question came from.
const (
	SourceCurated   = "curated"
	SourceGenerated = "generated"
)

var (
	ErrNotFound      = errors.New("question not found")
	ErrNoQuestion    = errors.New("no question matches criteria")
	ErrInvalidFilter = errors.New("invalid question filter")
)

// Question is a coding problem with its graded test cases.
type Question struct {
	ID                    uuid.UUID            `json:"id"`
	Title                 string               `json:"title"`
	Description           string               `json:"description"`
	Difficulty            string               `json:"difficulty"`
	QuestionType          string               `json:"question_type"`
	TestCases             []execution.TestCase `json:"test_cases"`
	RecommendedComplexity string               `json:"recommended_complexity,omitempty"`
	StarterCode           string               `json:"starter_code,omitempty"`
	Source                string               `json:"source"`
	CreatedAt             time.Time            `json:"created_at"`
}

// Criteria selects a question for a round.
type Criteria struct {
	Difficulty   string
	QuestionType string
}

// Filter narrows question listings. Zero values match everything.
type Filter struct {
	Difficulty   string
	QuestionType string
	Limit        int
}

// Draft is a validated request to add a question.
type Draft struct {
	Title                 string               `json:"title" validate:"required,max=200"`
	Description           string               `json:"description" validate:"required"`
	Difficulty            string               `json:"difficulty" validate:"required,oneof=easy medium hard"`
	QuestionType          string               `json:"question_type" validate:"omitempty,oneof=normal shortest debugging escape"`
	TestCases             []execution.TestCase `json:"test_cases" validate:"required,min=1,dive"`
	RecommendedComplexity string               `json:"recommended_complexity,omitempty" validate:"max=64"`
	StarterCode           string               `json:"starter_code,omitempty"`
}

// ErrInvalidDraft wraps validator failures on a Draft.
var ErrInvalidDraft = errors.New("invalid question")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDraft checks a draft before it is stored.
func ValidateDraft(d Draft) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}

func (c Criteria) validate() error {
	if !validDifficulty(c.Difficulty) {
		return fmt.Errorf("difficulty %q: %w", c.Difficulty, ErrInvalidFilter)
	}
	if !validType(c.QuestionType) {
		return fmt.Errorf("question type %q: %w", c.QuestionType, ErrInvalidFilter)
	}
	return nil
}

func (c Criteria) key() string {
	return c.Difficulty + "/" + c.QuestionType
}

func validDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

func validType(t string) bool {
	switch t {
	case TypeNormal, TypeShortest, TypeDebugging, TypeEscape:
		return true
	}
	return false
}

// AllCriteria lists every difficulty and type combination.
func AllCriteria() []Criteria {
	var out []Criteria
	for _, d := range []string{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		for _, t := range []string{TypeNormal, TypeShortest, TypeDebugging, TypeEscape} {
			out = append(out, Criteria{Difficulty: d, QuestionType: t})
		}
	}
	return out
}

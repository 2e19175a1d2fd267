package scoring

import (
	"strings"
	"unicode/utf8"
)

// ScoringConfig holds configurable scoring constants (defaults match product rules).
type ScoringConfig struct {
	BaseScore    int   // default: 100
	MaxTimeBonus int   // default: 20
	BonusStepMs  int64 // default: 50, one bonus point lost per step
}

// DefaultScoringConfig returns production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BaseScore:    100,
		MaxTimeBonus: 20,
		BonusStepMs:  50,
	}
}

// Engine computes server-side submission scores.
type Engine struct {
	config ScoringConfig
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config ScoringConfig) *Engine {
	if config.BonusStepMs <= 0 {
		config.BonusStepMs = 50
	}
	return &Engine{config: config}
}

// Score computes points for one graded submission.
// Formula: base + max(0, maxBonus - floor(ms / step)); incorrect scores 0.
func (e *Engine) Score(isCorrect bool, executionTimeMs int64) int {
	if !isCorrect {
		return 0
	}
	if executionTimeMs < 0 {
		executionTimeMs = 0
	}

	bonus := int64(e.config.MaxTimeBonus) - executionTimeMs/e.config.BonusStepMs
	if bonus < 0 {
		bonus = 0
	}
	if bonus > int64(e.config.MaxTimeBonus) {
		bonus = int64(e.config.MaxTimeBonus)
	}
	return e.config.BaseScore + int(bonus)
}

// CodeLength is the number of characters in the trimmed source.
func CodeLength(code string) int {
	return utf8.RuneCountInString(strings.TrimSpace(code))
}

package match

import (
	"errors"

	"github.com/gokatarajesh/codearena/internal/execution"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidState        = errors.New("invalid state")
	ErrFull                = errors.New("room full")
	ErrAlreadySubmitted    = errors.New("already submitted")
	ErrNoQuestionAvailable = errors.New("no question available")
	ErrInvalidInput        = errors.New("invalid input")

	// ErrExecutionFailed is shared with the execution client so callers can
	// match sandbox failures from either layer.
	ErrExecutionFailed = execution.ErrExecutionFailed
)

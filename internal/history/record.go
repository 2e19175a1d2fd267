// Package history hands finished rounds to durable sinks off the hot path.
package history

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// End reasons stored with each record.
const (
	ReasonCompleted   = "completed"
	ReasonTimeExpired = "time_expired"
	ReasonHostEnded   = "host_ended"
	ReasonHostLeft    = "host_left"
	ReasonDeleted     = "deleted"
	// ReasonLate marks the audit record of a submission that missed its round.
	ReasonLate = "late"
)

// Record kinds. Only KindRound records carry a scored round.
const (
	KindRound = "round"
	// KindClosing is the roster of a room that closed with no round in play.
	KindClosing = "closing"
	// KindLate is a submission that arrived after its round was settled.
	KindLate = "late_submission"
)

// Participant is one roster entry as it stood when the round ended.
type Participant struct {
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Submitted       bool      `json:"submitted"`
	IsCorrect       bool      `json:"is_correct"`
	Disqualified    bool      `json:"disqualified"`
	Score           int       `json:"score"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	CodeLength      int       `json:"code_length"`
	Language        string    `json:"language,omitempty"`
}

// Record is the finished-round hand-off.
type Record struct {
	ID            uuid.UUID     `json:"id"`
	Kind          string        `json:"kind"`
	RoomID        uuid.UUID     `json:"room_id"`
	Round         int           `json:"round"`
	JoinCode      string        `json:"join_code"`
	HostID        uuid.UUID     `json:"host_id"`
	Mode          string        `json:"mode"`
	Difficulty    string        `json:"difficulty"`
	Tier          string        `json:"tier"`
	QuestionID    uuid.UUID     `json:"question_id"`
	QuestionTitle string        `json:"question_title"`
	WinnerID      *uuid.UUID    `json:"winner_id,omitempty"`
	WinnerName    string        `json:"winner_name,omitempty"`
	Reason        string        `json:"reason"`
	Participants  []Participant `json:"participants"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	// Detail is the full round snapshot, late submissions included.
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Scored reports whether rec is a played round that standings should count.
func (r Record) Scored() bool {
	return r.Kind == "" || r.Kind == KindRound
}

// Winner reports whether userID won the round.
func (r Record) Winner(userID uuid.UUID) bool {
	return r.WinnerID != nil && *r.WinnerID == userID
}

package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/codearena/internal/match/scoring"
	"github.com/gokatarajesh/codearena/internal/question"
)

// Status is a room's lifecycle state.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Mode selects the scoring and win rules of a round.
type Mode = scoring.Mode

const (
	ModeNormal    = scoring.ModeNormal
	ModeShortest  = scoring.ModeShortest
	ModeDebugging = scoring.ModeDebugging
	ModeEscape    = scoring.ModeEscape
)

// Participant is a roster member.
type Participant struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Submission is one graded attempt. It never changes once committed.
type Submission struct {
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Round           int       `json:"round"`
	Code            string    `json:"code,omitempty"`
	Language        string    `json:"language"`
	SubmittedAt     time.Time `json:"submitted_at"`
	IsCorrect       bool      `json:"is_correct"`
	Feedback        string    `json:"feedback"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Score           int       `json:"score"`
	CodeLength      int       `json:"code_length"`
	Disqualified    bool      `json:"disqualified,omitempty"`
	Late            bool      `json:"late,omitempty"`
}

// Snapshot is an immutable copy of a room's state.
type Snapshot struct {
	ID              uuid.UUID          `json:"id"`
	JoinCode        string             `json:"join_code"`
	Name            string             `json:"name"`
	HostID          uuid.UUID          `json:"host_id"`
	Status          Status             `json:"status"`
	Mode            Mode               `json:"mode"`
	MaxPlayers      int                `json:"max_players"`
	Participants    []Participant      `json:"participants"`
	Round           int                `json:"round"`
	Difficulty      string             `json:"difficulty,omitempty"`
	Tier            string             `json:"tier,omitempty"`
	Question        *question.Question `json:"question,omitempty"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	DurationSeconds int                `json:"duration_seconds,omitempty"`
	EndsAt          *time.Time         `json:"ends_at,omitempty"`
	Submissions     []Submission       `json:"submissions"`
	Pending         []uuid.UUID        `json:"pending,omitempty"`
	LateSubmissions []Submission       `json:"late_submissions,omitempty"`
	WinnerID        *uuid.UUID         `json:"winner_id,omitempty"`
	WinnerName      string             `json:"winner_name,omitempty"`
	EndedAt         *time.Time         `json:"ended_at,omitempty"`
	EndReason       string             `json:"end_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	Closed          bool               `json:"closed,omitempty"`
	// Seq is the sequence number of the last event this state includes.
	Seq uint64 `json:"seq"`
}

// HasFreeSlot reports whether another player could join right now.
func (s Snapshot) HasFreeSlot() bool {
	return s.Status == StatusWaiting && len(s.Participants) < s.MaxPlayers
}

// Member reports whether userID is on the roster.
func (s Snapshot) Member(userID uuid.UUID) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Submission returns userID's committed submission for the current round.
func (s Snapshot) Submission(userID uuid.UUID) (Submission, bool) {
	for _, sub := range s.Submissions {
		if sub.UserID == userID {
			return sub, true
		}
	}
	return Submission{}, false
}

// ViewFor hides other players' source code and the late-submission audit
// trail. Code is revealed to everyone once the round has finished.
func (s Snapshot) ViewFor(viewer uuid.UUID) Snapshot {
	subs := make([]Submission, len(s.Submissions))
	for i, sub := range s.Submissions {
		if sub.UserID != viewer && s.Status != StatusFinished {
			sub.Code = ""
		}
		subs[i] = sub
	}
	s.Submissions = subs
	s.LateSubmissions = nil
	return s
}

// CreateParams configures a new room.
type CreateParams struct {
	Name       string
	Host       Participant
	Mode       Mode
	MaxPlayers int
}

// StartParams configures a round. Zero values take coordinator defaults.
type StartParams struct {
	Mode            Mode
	Difficulty      string
	Tier            string
	DurationSeconds int
}

// ListFilter narrows ListRooms. Zero values match everything.
type ListFilter struct {
	Status      Status
	Mode        Mode
	HasFreeSlot bool
}

// Matches reports whether s passes the filter.
func (f ListFilter) Matches(s Snapshot) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Mode != "" && s.Mode != f.Mode {
		return false
	}
	if f.HasFreeSlot && !s.HasFreeSlot() {
		return false
	}
	return true
}

// SubmitResult tells the submitter how their attempt was recorded.
type SubmitResult struct {
	Submission Submission `json:"submission"`
	Room       Snapshot   `json:"room"`
}

// Event payloads. Code is never broadcast.

type PlayerJoinedPayload struct {
	Participant Participant `json:"participant"`
	Count       int         `json:"count"`
}

type PlayerLeftPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Count       int       `json:"count"`
}

type RoundStartedPayload struct {
	Round           int               `json:"round"`
	Mode            Mode              `json:"mode"`
	Difficulty      string            `json:"difficulty"`
	Tier            string            `json:"tier"`
	Question        question.Question `json:"question"`
	StartedAt       time.Time         `json:"started_at"`
	DurationSeconds int               `json:"duration_seconds"`
	EndsAt          time.Time         `json:"ends_at"`
	Participants    []uuid.UUID       `json:"participants"`
}

type SubmissionRecordedPayload struct {
	Round           int       `json:"round"`
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Language        string    `json:"language"`
	IsCorrect       bool      `json:"is_correct"`
	Feedback        string    `json:"feedback"`
	Score           int       `json:"score"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	CodeLength      int       `json:"code_length"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

type RoundEndedPayload struct {
	Round      int          `json:"round"`
	Reason     string       `json:"reason"`
	WinnerID   *uuid.UUID   `json:"winner_id,omitempty"`
	WinnerName string       `json:"winner_name,omitempty"`
	EndedAt    time.Time    `json:"ended_at"`
	Results    []Submission `json:"results"`
}

type DisqualifiedPayload struct {
	Round  int       `json:"round"`
	UserID uuid.UUID `json:"user_id"`
	By     uuid.UUID `json:"by"`
	Reason string    `json:"reason"`
}

type RoundResetPayload struct {
	Round int `json:"round"`
}

type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

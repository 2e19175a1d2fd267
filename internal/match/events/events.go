// Package events carries room state changes from the room actor to observers.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names a room event on the wire.
type Type string

const (
	PlayerJoined       Type = "player_joined"
	PlayerLeft         Type = "player_left"
	RoundStarted       Type = "round_started"
	SubmissionRecorded Type = "submission_recorded"
	RoundEnded         Type = "round_ended"
	Disqualified       Type = "disqualified"
	RoundReset         Type = "round_reset"
	RoomClosed         Type = "room_closed"
)

// Event is an immutable notification committed by a room. Seq increases by
// one per event within a room, so observers can spot gaps.
type Event struct {
	RoomID  uuid.UUID `json:"room_id"`
	Seq     uint64    `json:"seq"`
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

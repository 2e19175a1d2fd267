package ws

import (
	"encoding/json"
	"time"
)

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeReplay      = "replay"
	TypeSubmit      = "submit"
	TypePing        = "ping"

	// Server -> Client
	TypeSubscribed        = "subscribed"
	TypeUnsubscribed      = "unsubscribed"
	TypeRoomEvent         = "room_event"
	TypeSubmissionResult  = "submission_result"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeError             = "error"
	TypePong              = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage encodes payload into a typed message.
func NewMessage(typ string, payload interface{}, requestID string) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Payload: raw, RequestID: requestID}, nil
}

// Client Messages (incoming)

// SubscribePayload starts streaming a room. AfterSeq > 0 replays the
// buffered events after that sequence number first.
type SubscribePayload struct {
	RoomID   string `json:"room_id"`
	AfterSeq uint64 `json:"after_seq,omitempty"`
}

type UnsubscribePayload struct {
	RoomID string `json:"room_id"`
}

type ReplayPayload struct {
	RoomID   string `json:"room_id"`
	AfterSeq uint64 `json:"after_seq"`
}

type SubmitPayload struct {
	RoomID   string `json:"room_id"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Server Messages (outgoing)

type SubscribedPayload struct {
	RoomID string      `json:"room_id"`
	Room   interface{} `json:"room"`
}

type UnsubscribedPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason,omitempty"`
}

// RoomEventPayload carries one sequenced room event.
type RoomEventPayload struct {
	RoomID  string      `json:"room_id"`
	Seq     uint64      `json:"seq"`
	Event   string      `json:"event"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

type SubmissionResultPayload struct {
	RoomID     string      `json:"room_id"`
	Submission interface{} `json:"submission"`
}

type LeaderboardUpdatePayload struct {
	Top []LeaderboardEntry `json:"top"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TotalScore  int    `json:"total_score"`
	GamesPlayed int    `json:"games_played"`
	Wins        int    `json:"wins"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

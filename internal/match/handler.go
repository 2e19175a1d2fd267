package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/auth"
	"github.com/gokatarajesh/codearena/internal/match/events"
	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
	ws "github.com/gokatarajesh/codearena/pkg/http/ws"
)

const defaultResyncDelay = 100 * time.Millisecond

var errRoomGone = errors.New("room closed")

// Handler manages WebSocket connections that watch rooms and submit code.
type Handler struct {
	coord  *Coordinator
	hub    *ws.Hub
	tokens auth.TokenValidator
	logger zerolog.Logger

	// resyncDelay is how long a watch backs off when the client's send
	// queue is full before catching up again.
	resyncDelay time.Duration
}

// NewHandler creates a room WebSocket handler.
func NewHandler(coord *Coordinator, hub *ws.Hub, tokens auth.TokenValidator, logger zerolog.Logger) *Handler {
	return &Handler{
		coord:  coord,
		hub:    hub,
		tokens: tokens,
		logger: logger.With().Str("component", "room_ws").Logger(),

		resyncDelay: defaultResyncDelay,
	}
}

// session is the per-connection state: which rooms it watches.
type session struct {
	h      *Handler
	conn   *ws.Connection
	userID uuid.UUID
	ctx    context.Context
	logger zerolog.Logger

	mu      sync.Mutex
	watches map[uuid.UUID]chan struct{}
	wg      sync.WaitGroup
}

// HandleConnection serves an authenticated connection until it closes.
func (h *Handler) HandleConnection(socket ws.Socket, userID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := h.logger.With().Str("user_id", userID.String()).Logger()
	conn := ws.NewConnection(socket, logger)
	h.hub.RegisterConnection(userID, conn)

	s := &session{
		h:       h,
		conn:    conn,
		userID:  userID,
		ctx:     ctx,
		logger:  logger,
		watches: make(map[uuid.UUID]chan struct{}),
	}

	go conn.WritePump()
	conn.ReadPump(func(msg ws.Message) error {
		return s.handleMessage(msg)
	})

	s.stopAll()
	h.hub.UnregisterConnection(userID, conn)
}

func (s *session) handleMessage(msg ws.Message) error {
	switch msg.Type {
	case ws.TypeSubscribe:
		return s.handleSubscribe(msg)
	case ws.TypeUnsubscribe:
		return s.handleUnsubscribe(msg)
	case ws.TypeReplay:
		return s.handleReplay(msg)
	case ws.TypeSubmit:
		return s.handleSubmit(msg)
	case ws.TypePing:
		return s.send(ws.TypePong, struct{}{}, msg.RequestID)
	default:
		return s.sendError(msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (s *session) handleSubscribe(msg ws.Message) error {
	var req ws.SubscribePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid subscribe payload")
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidRoomID, "Invalid room id")
	}

	s.mu.Lock()
	_, watching := s.watches[roomID]
	s.mu.Unlock()
	if watching {
		snap, err := s.h.coord.GetRoom(roomID)
		if err != nil {
			return s.sendCoordError(msg.RequestID, err)
		}
		return s.send(ws.TypeSubscribed, ws.SubscribedPayload{RoomID: roomID.String(), Room: snap.ViewFor(s.userID)}, msg.RequestID)
	}

	// subscribe before reading the snapshot: every event after snap.Seq
	// is then either on sub or still in the room history
	b := s.h.coord.Events()
	sub := b.Subscribe(roomID)
	snap, err := s.h.coord.GetRoom(roomID)
	if err != nil {
		b.Unsubscribe(sub)
		return s.sendCoordError(msg.RequestID, err)
	}

	s.mu.Lock()
	if _, watching := s.watches[roomID]; watching {
		s.mu.Unlock()
		b.Unsubscribe(sub)
		return s.send(ws.TypeSubscribed, ws.SubscribedPayload{RoomID: roomID.String(), Room: snap.ViewFor(s.userID)}, msg.RequestID)
	}
	stop := make(chan struct{})
	s.watches[roomID] = stop
	s.mu.Unlock()

	if err := s.send(ws.TypeSubscribed, ws.SubscribedPayload{RoomID: roomID.String(), Room: snap.ViewFor(s.userID)}, msg.RequestID); err != nil {
		b.Unsubscribe(sub)
		s.stop(roomID)
		return err
	}

	from := snap.Seq
	if req.AfterSeq > 0 {
		from = req.AfterSeq
	}
	s.wg.Add(1)
	go s.forward(roomID, sub, from, stop)
	return nil
}

func (s *session) handleUnsubscribe(msg ws.Message) error {
	var req ws.UnsubscribePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid unsubscribe payload")
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidRoomID, "Invalid room id")
	}
	s.stop(roomID)
	return s.send(ws.TypeUnsubscribed, ws.UnsubscribedPayload{RoomID: roomID.String()}, msg.RequestID)
}

func (s *session) handleReplay(msg ws.Message) error {
	var req ws.ReplayPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid replay payload")
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidRoomID, "Invalid room id")
	}
	for _, ev := range s.h.coord.Events().Replay(roomID, req.AfterSeq) {
		if err := s.sendEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) handleSubmit(msg ws.Message) error {
	var req ws.SubmitPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid submit payload")
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return s.sendError(msg.RequestID, httperrors.ErrCodeInvalidRoomID, "Invalid room id")
	}

	// sandbox runs take seconds; keep reading while they do
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.h.coord.SubmitSolution(s.ctx, roomID, s.userID, req.Code, req.Language)
		if err != nil {
			_ = s.sendCoordError(msg.RequestID, err)
			return
		}
		_ = s.send(ws.TypeSubmissionResult, ws.SubmissionResultPayload{
			RoomID:     roomID.String(),
			Submission: res.Submission,
		}, msg.RequestID)
	}()
	return nil
}

// forward streams roomID's events after seq from to the connection. When
// the subscription is dropped, or the client's send queue fills up, it
// resubscribes and fills the gap from history. A gap history no longer
// covers is replaced by a fresh snapshot.
func (s *session) forward(roomID uuid.UUID, sub *events.Subscription, from uint64, stop <-chan struct{}) {
	defer s.wg.Done()
	defer s.release(roomID, stop)
	b := s.h.coord.Events()
	defer func() { b.Unsubscribe(sub) }()
	logger := s.logger.With().Str("room_id", roomID.String()).Logger()

	last := from
	deliver := func(ev events.Event) error {
		if ev.Seq <= last {
			return nil
		}
		if err := s.sendEvent(ev); err != nil {
			return err
		}
		last = ev.Seq
		return nil
	}
	catchUp := func() error {
		for _, ev := range b.Replay(roomID, last) {
			if err := deliver(ev); err != nil {
				return err
			}
		}
		return nil
	}
	resync := func() error {
		sub = b.Subscribe(roomID)
		snap, err := s.h.coord.GetRoom(roomID)
		if err != nil {
			return errRoomGone
		}
		missed := b.Replay(roomID, last)
		if snap.Seq > last && (len(missed) == 0 || missed[0].Seq > last+1) {
			if err := s.send(ws.TypeSubscribed, ws.SubscribedPayload{RoomID: roomID.String(), Room: snap.ViewFor(s.userID)}, ""); err != nil {
				return err
			}
			logger.Info().Uint64("from_seq", last).Uint64("to_seq", snap.Seq).Msg("event gap replaced by snapshot")
			last = snap.Seq
		}
		return catchUp()
	}

	err := catchUp()
	for {
		switch {
		case err == nil:
		case errors.Is(err, ws.ErrSendQueueFull):
			logger.Warn().Uint64("seq", last).Msg("client send queue full, backing off")
			b.Unsubscribe(sub)
			if !s.pause(stop) {
				return
			}
			err = resync()
			continue
		case errors.Is(err, errRoomGone):
			_ = s.send(ws.TypeUnsubscribed, ws.UnsubscribedPayload{RoomID: roomID.String(), Reason: "room_closed"}, "")
			return
		default:
			logger.Warn().Err(err).Msg("event delivery failed")
			return
		}

		select {
		case <-stop:
			return
		case <-s.conn.Done():
			return
		case ev, ok := <-sub.Events():
			if ok {
				err = deliver(ev)
				continue
			}
			err = resync()
		}
	}
}

// pause waits out the resync delay. It reports false when the watch ended meanwhile.
func (s *session) pause(stop <-chan struct{}) bool {
	t := time.NewTimer(s.h.resyncDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-s.conn.Done():
		return false
	}
}

func (s *session) stop(roomID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.watches[roomID]; ok {
		close(ch)
		delete(s.watches, roomID)
	}
}

// release drops the watch entry of a forwarder that exited on its own, so
// a later subscribe starts a new one. A newer watch for the room is kept.
func (s *session) release(roomID uuid.UUID, stop <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.watches[roomID]; ok && ch == stop {
		delete(s.watches, roomID)
	}
}

func (s *session) stopAll() {
	s.mu.Lock()
	for id, ch := range s.watches {
		close(ch)
		delete(s.watches, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *session) sendEvent(ev events.Event) error {
	return s.send(ws.TypeRoomEvent, ws.RoomEventPayload{
		RoomID:  ev.RoomID.String(),
		Seq:     ev.Seq,
		Event:   string(ev.Type),
		At:      ev.At,
		Payload: ev.Payload,
	}, "")
}

func (s *session) send(typ string, payload interface{}, requestID string) error {
	msg, err := ws.NewMessage(typ, payload, requestID)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	return s.conn.Send(msg)
}

func (s *session) sendError(requestID, code, message string) error {
	return s.send(ws.TypeError, ws.ErrorPayload{Code: code, Message: message}, requestID)
}

func (s *session) sendCoordError(requestID string, err error) error {
	_, code := ErrorStatus(err)
	message := err.Error()
	if code == httperrors.ErrCodeInternalError {
		s.logger.Error().Err(err).Msg("room operation failed")
		message = "Internal error"
	}
	return s.sendError(requestID, code, message)
}

package match

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/codearena/internal/auth/jwt"
	"github.com/gokatarajesh/codearena/internal/match/events"
	ws "github.com/gokatarajesh/codearena/pkg/http/ws"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialRoom(t *testing.T, h *harness, caller Participant) *wsClient {
	t.Helper()
	tokens := jwt.NewManager(jwt.TokenConfig{Secret: []byte("test-secret")})
	handler := NewHandler(h.coord, ws.NewHub(zerolog.Nop()), tokens, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)

	token, err := tokens.Generate(caller.UserID, caller.DisplayName)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(typ string, payload interface{}, requestID string) {
	c.t.Helper()
	msg, err := ws.NewMessage(typ, payload, requestID)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// next reads until a message of typ arrives.
func (c *wsClient) next(typ string) ws.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg ws.Message
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func (c *wsClient) event() ws.RoomEventPayload {
	c.t.Helper()
	var ev ws.RoomEventPayload
	require.NoError(c.t, json.Unmarshal(c.next(ws.TypeRoomEvent).Payload, &ev))
	return ev
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	h := newHarness(t)
	handler := NewHandler(h.coord, ws.NewHub(zerolog.Nop()), jwt.NewManager(jwt.TokenConfig{Secret: []byte("s")}), zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestWebSocketStreamsRoomEvents(t *testing.T) {
	h := newHarness(t)
	host := player("host")
	room := h.room(t, ModeNormal, host)

	client := dialRoom(t, h, host)
	client.send(ws.TypeSubscribe, ws.SubscribePayload{RoomID: room.ID.String()}, "sub-1")
	ack := client.next(ws.TypeSubscribed)
	assert.Equal(t, "sub-1", ack.RequestID)

	_, err := h.coord.JoinRoom(context.Background(), room.ID, player("guest"))
	require.NoError(t, err)

	ev := client.event()
	assert.Equal(t, "player_joined", ev.Event)
	assert.Equal(t, uint64(2), ev.Seq)
}

func TestWebSocketSubscribeCatchesEventsPublishedBeforeSnapshot(t *testing.T) {
	h := newHarness(t)
	host := player("host")
	room := h.room(t, ModeNormal, host)
	require.Equal(t, uint64(1), room.Seq)

	// committed and published, but not yet part of the stored snapshot
	h.events.Publish(events.Event{RoomID: room.ID, Seq: 2, Type: events.PlayerJoined, At: epoch})

	client := dialRoom(t, h, host)
	client.send(ws.TypeSubscribe, ws.SubscribePayload{RoomID: room.ID.String()}, "")
	var ack struct {
		Room Snapshot `json:"room"`
	}
	require.NoError(t, json.Unmarshal(client.next(ws.TypeSubscribed).Payload, &ack))
	assert.Equal(t, uint64(1), ack.Room.Seq)

	ev := client.event()
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, "player_joined", ev.Event)
}

func TestWebSocketSubscribeReplaysFromSeq(t *testing.T) {
	h := newHarness(t)
	host := player("host")
	room := h.room(t, ModeNormal, host, player("a"), player("b"))

	client := dialRoom(t, h, host)
	client.send(ws.TypeSubscribe, ws.SubscribePayload{RoomID: room.ID.String(), AfterSeq: 1}, "")
	client.next(ws.TypeSubscribed)

	first, second := client.event(), client.event()
	assert.Equal(t, uint64(2), first.Seq)
	assert.Equal(t, uint64(3), second.Seq)
}

func TestWebSocketSubmit(t *testing.T) {
	h := newHarness(t)
	host, guest := player("host"), player("guest")
	room := h.started(t, ModeNormal, host, guest)

	client := dialRoom(t, h, guest)
	client.send(ws.TypeSubmit, ws.SubmitPayload{RoomID: room.ID.String(), Code: "print(3)", Language: "python"}, "s1")

	msg := client.next(ws.TypeSubmissionResult)
	assert.Equal(t, "s1", msg.RequestID)
	var res struct {
		Submission Submission `json:"submission"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &res))
	assert.True(t, res.Submission.IsCorrect)

	client.send(ws.TypeSubmit, ws.SubmitPayload{RoomID: room.ID.String(), Code: "print(3)", Language: "python"}, "s2")
	errMsg := client.next(ws.TypeError)
	assert.Equal(t, "s2", errMsg.RequestID)
	assert.Contains(t, string(errMsg.Payload), "already_submitted")
}

func TestWebSocketRoomClosedEndsWatch(t *testing.T) {
	h := newHarness(t)
	host := player("host")
	room := h.room(t, ModeNormal, host)

	client := dialRoom(t, h, host)
	client.send(ws.TypeSubscribe, ws.SubscribePayload{RoomID: room.ID.String()}, "")
	client.next(ws.TypeSubscribed)

	require.NoError(t, h.coord.DeleteRoom(context.Background(), room.ID, host.UserID))

	assert.Equal(t, "room_closed", client.event().Event)
	var p ws.UnsubscribedPayload
	require.NoError(t, json.Unmarshal(client.next(ws.TypeUnsubscribed).Payload, &p))
	assert.Equal(t, "room_closed", p.Reason)
}

func TestWebSocketUnknownType(t *testing.T) {
	h := newHarness(t)
	client := dialRoom(t, h, player("x"))
	client.send("dance", struct{}{}, "r")
	assert.Contains(t, string(client.next(ws.TypeError).Payload), "unknown_message_type")
}

// gatedSocket is a ws.Socket whose writes block until gate is closed.
type gatedSocket struct {
	in        chan ws.Message
	gate      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []ws.Message
}

func newGatedSocket() *gatedSocket {
	return &gatedSocket{
		in:     make(chan ws.Message, 8),
		gate:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (g *gatedSocket) ReadJSON(v interface{}) error {
	select {
	case msg := <-g.in:
		*v.(*ws.Message) = msg
		return nil
	case <-g.closed:
		return io.EOF
	}
}

func (g *gatedSocket) WriteJSON(v interface{}) error {
	select {
	case <-g.gate:
	case <-g.closed:
		return io.ErrClosedPipe
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.written = append(g.written, v.(ws.Message))
	return nil
}

func (g *gatedSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (g *gatedSocket) SetReadDeadline(time.Time) error           { return nil }
func (g *gatedSocket) SetWriteDeadline(time.Time) error          { return nil }
func (g *gatedSocket) SetPongHandler(func(string) error)         {}

func (g *gatedSocket) Close() error {
	g.closeOnce.Do(func() { close(g.closed) })
	return nil
}

func (g *gatedSocket) sawEvent(seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, msg := range g.written {
		if msg.Type != ws.TypeRoomEvent {
			continue
		}
		var ev ws.RoomEventPayload
		if json.Unmarshal(msg.Payload, &ev) == nil && ev.Seq == seq {
			return true
		}
	}
	return false
}

func TestWatchSurvivesFullSendQueue(t *testing.T) {
	h := newHarness(t)
	host := player("host")
	room := h.room(t, ModeNormal, host)

	handler := NewHandler(h.coord, ws.NewHub(zerolog.Nop()), jwt.NewManager(jwt.TokenConfig{Secret: []byte("s")}), zerolog.Nop())
	handler.resyncDelay = 10 * time.Millisecond

	sock := newGatedSocket()
	served := make(chan struct{})
	go func() {
		defer close(served)
		handler.HandleConnection(sock, host.UserID)
	}()
	t.Cleanup(func() {
		sock.Close()
		<-served
	})

	subscribe, err := ws.NewMessage(ws.TypeSubscribe, ws.SubscribePayload{RoomID: room.ID.String()}, "")
	require.NoError(t, err)
	sock.in <- subscribe
	require.Eventually(t, func() bool {
		return h.events.Subscribers(room.ID) == 1
	}, time.Second, 5*time.Millisecond)

	// more than the connection can queue while the client is stalled
	for seq := uint64(2); seq <= 401; seq++ {
		h.events.Publish(events.Event{RoomID: room.ID, Seq: seq, Type: events.PlayerJoined, At: epoch})
	}
	close(sock.gate)

	require.Eventually(t, func() bool { return sock.sawEvent(401) }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.events.Subscribers(room.ID) == 1
	}, time.Second, 5*time.Millisecond)

	h.events.Publish(events.Event{RoomID: room.ID, Seq: 1000, Type: events.PlayerLeft, At: epoch})
	assert.Eventually(t, func() bool { return sock.sawEvent(1000) }, 2*time.Second, 5*time.Millisecond)

	// subscribing again is acknowledged without a second forwarder
	sock.in <- subscribe
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.events.Subscribers(room.ID))
}

package events

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/metrics"
)

const (
	defaultBufferSize  = 256
	defaultHistorySize = 256
)

// Subscription receives the events of one room in commit order. The channel
// is closed on Unsubscribe, on room close, or when the subscriber falls a
// full buffer behind; in the last case Replay recovers the gap.
type Subscription struct {
	RoomID uuid.UUID

	ch     chan Event
	closed bool
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Broadcaster fans room events out to subscribers. Publish must be called
// from a single goroutine per room for per-room ordering to hold.
type Broadcaster struct {
	mu          sync.RWMutex
	subs        map[uuid.UUID]map[*Subscription]struct{}
	history     map[uuid.UUID][]Event
	bufferSize  int
	historySize int
	logger      zerolog.Logger
}

// NewBroadcaster creates a broadcaster that keeps the last historySize
// events per room for replay.
func NewBroadcaster(historySize int, logger zerolog.Logger) *Broadcaster {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Broadcaster{
		subs:        make(map[uuid.UUID]map[*Subscription]struct{}),
		history:     make(map[uuid.UUID][]Event),
		bufferSize:  defaultBufferSize,
		historySize: historySize,
		logger:      logger.With().Str("component", "event_broadcaster").Logger(),
	}
}

// Subscribe registers an observer for roomID. Rooms need not exist yet.
func (b *Broadcaster) Subscribe(roomID uuid.UUID) *Subscription {
	sub := &Subscription{RoomID: roomID, ch: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[roomID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[roomID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(sub)
}

func (b *Broadcaster) drop(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	if set, ok := b.subs[sub.RoomID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.RoomID)
		}
	}
}

// Publish records ev in the room history and delivers it to every subscriber.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := append(b.history[ev.RoomID], ev)
	if len(h) > b.historySize {
		h = append([]Event(nil), h[len(h)-b.historySize:]...)
	}
	b.history[ev.RoomID] = h
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	for sub := range b.subs[ev.RoomID] {
		select {
		case sub.ch <- ev:
		default:
			metrics.SlowSubscribers.Inc()
			b.logger.Warn().
				Str("room_id", ev.RoomID.String()).
				Uint64("seq", ev.Seq).
				Msg("subscriber buffer full, dropping subscription")
			b.drop(sub)
		}
	}
}

// Replay returns retained events of roomID with Seq greater than afterSeq.
func (b *Broadcaster) Replay(roomID uuid.UUID, afterSeq uint64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h := b.history[roomID]
	i := sort.Search(len(h), func(i int) bool { return h[i].Seq > afterSeq })
	return append([]Event(nil), h[i:]...)
}

// Close ends every subscription of roomID and forgets its history.
func (b *Broadcaster) Close(roomID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[roomID] {
		b.drop(sub)
	}
	delete(b.history, roomID)
}

// Subscribers reports the number of live subscriptions for roomID.
func (b *Broadcaster) Subscribers(roomID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roomID])
}

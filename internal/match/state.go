package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RoomStore shares room state across instances.
type RoomStore interface {
	ReserveJoinCode(ctx context.Context, code string, roomID uuid.UUID) (bool, error)
	ReleaseJoinCode(ctx context.Context, code string, roomID uuid.UUID) error
	StoreSnapshot(ctx context.Context, snap Snapshot) error
	DeleteSnapshot(ctx context.Context, roomID uuid.UUID) error
}

const defaultStateTTL = 2 * time.Hour

// releaseScript deletes the key only if we still own it.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// StateManager keeps join codes and room snapshots in Redis.
type StateManager struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

var _ RoomStore = (*StateManager)(nil)

// NewStateManager creates a state manager backed by Redis.
func NewStateManager(redis *redis.Client, ttl time.Duration, logger zerolog.Logger) *StateManager {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateManager{
		redis:  redis,
		ttl:    ttl,
		logger: logger,
	}
}

func codeKey(code string) string {
	return fmt.Sprintf("room:code:%s", code)
}

func snapshotKey(roomID uuid.UUID) string {
	return fmt.Sprintf("room:snapshot:%s", roomID.String())
}

// ReserveJoinCode claims code for roomID. False means another room holds it.
func (s *StateManager) ReserveJoinCode(ctx context.Context, code string, roomID uuid.UUID) (bool, error) {
	ok, err := s.redis.SetNX(ctx, codeKey(code), roomID.String(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve join code: %w", err)
	}
	return ok, nil
}

// ReleaseJoinCode frees code if roomID still holds it.
func (s *StateManager) ReleaseJoinCode(ctx context.Context, code string, roomID uuid.UUID) error {
	return s.redis.Eval(ctx, releaseScript, []string{codeKey(code)}, roomID.String()).Err()
}

// StoreSnapshot saves the room and refreshes its join code lease.
func (s *StateManager) StoreSnapshot(ctx context.Context, snap Snapshot) error {
	snap.Question = nil
	subs := make([]Submission, len(snap.Submissions))
	for i, sub := range snap.Submissions {
		sub.Code = ""
		subs[i] = sub
	}
	snap.Submissions = subs
	snap.LateSubmissions = nil
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, snapshotKey(snap.ID), data, s.ttl)
	pipe.Expire(ctx, codeKey(snap.JoinCode), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// GetSnapshot reads a mirrored snapshot, or nil when absent.
func (s *StateManager) GetSnapshot(ctx context.Context, roomID uuid.UUID) (*Snapshot, error) {
	data, err := s.redis.Get(ctx, snapshotKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot drops the mirrored room.
func (s *StateManager) DeleteSnapshot(ctx context.Context, roomID uuid.UUID) error {
	return s.redis.Del(ctx, snapshotKey(roomID)).Err()
}

// Mirror copies committed snapshots to a RoomStore from one goroutine.
// Bursts of changes to the same room collapse into a single write.
type Mirror struct {
	store  RoomStore
	mu     sync.Mutex
	dirty  map[uuid.UUID]Snapshot
	wake   chan struct{}
	logger zerolog.Logger
}

// NewMirror creates a mirror writing to store.
func NewMirror(store RoomStore, logger zerolog.Logger) *Mirror {
	return &Mirror{
		store:  store,
		dirty:  make(map[uuid.UUID]Snapshot),
		wake:   make(chan struct{}, 1),
		logger: logger.With().Str("component", "room_mirror").Logger(),
	}
}

// Mark queues snap for writing. It never blocks.
func (m *Mirror) Mark(snap Snapshot) {
	m.mu.Lock()
	m.dirty[snap.ID] = snap
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.flush(context.WithoutCancel(ctx))
			return nil
		case <-m.wake:
			m.flush(ctx)
		}
	}
}

func (m *Mirror) flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.dirty
	m.dirty = make(map[uuid.UUID]Snapshot)
	m.mu.Unlock()

	for id, snap := range batch {
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		var err error
		if snap.Closed {
			err = m.store.DeleteSnapshot(wctx, id)
			if relErr := m.store.ReleaseJoinCode(wctx, snap.JoinCode, id); relErr != nil && err == nil {
				err = relErr
			}
		} else {
			err = m.store.StoreSnapshot(wctx, snap)
		}
		cancel()
		if err != nil {
			m.logger.Warn().Err(err).Str("room_id", id.String()).Msg("mirror write failed")
		}
	}
}

package leaderboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	ws "github.com/gokatarajesh/codearena/pkg/http/ws"
)

type socketHub interface {
	BroadcastAll(msg ws.Message) error
}

// Fanout pushes standings published by any instance to the sockets held by
// this one. Rounds are applied by the instance that hosted the room, so the
// Pub/Sub channel is the only way other instances learn about them.
type Fanout struct {
	redis   *redis.Client
	sockets socketHub
	channel string
	backoff func() retry.Backoff
	logger  zerolog.Logger

	// last is the payload most recently pushed; unchanged tables are skipped
	last []byte
}

func NewFanout(redis *redis.Client, sockets socketHub, channel string, logger zerolog.Logger) *Fanout {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Fanout{
		redis:   redis,
		sockets: sockets,
		channel: channel,
		backoff: func() retry.Backoff {
			return retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
		},
		logger: logger.With().Str("component", "leaderboard_fanout").Str("channel", channel).Logger(),
	}
}

// Run relays standings until ctx ends, resubscribing whenever Redis drops
// the subscription.
func (f *Fanout) Run(ctx context.Context) error {
	if f.redis == nil || f.sockets == nil {
		return nil
	}
	return retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn().Err(err).Msg("standings subscription lost, retrying")
		return retry.RetryableError(err)
	})
}

func (f *Fanout) listen(ctx context.Context) error {
	pubsub := f.redis.Subscribe(ctx, f.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info().Msg("relaying standings")

	updates := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			f.relay(msg.Payload)
		}
	}
}

// relay pushes one published table to every local socket.
func (f *Fanout) relay(payload string) {
	var update ws.LeaderboardUpdatePayload
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		f.logger.Warn().Err(err).Msg("dropping malformed standings")
		return
	}
	msg, err := ws.NewMessage(ws.TypeLeaderboardUpdate, update, "")
	if err != nil {
		f.logger.Warn().Err(err).Msg("encode standings")
		return
	}
	if bytes.Equal(msg.Payload, f.last) {
		return
	}
	f.last = msg.Payload

	// a stalled socket must not hold back the others; BroadcastAll already tried them all
	if err := f.sockets.BroadcastAll(msg); err != nil {
		f.logger.Debug().Err(err).Int("entries", len(update.Top)).Msg("standings missed some sockets")
	}
}

package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/history"
	ws "github.com/gokatarajesh/codearena/pkg/http/ws"
)

const appliedTTL = 7 * 24 * time.Hour

// DefaultChannel carries standings between instances.
const DefaultChannel = "lb:updates"

// Entry is one ranked player.
type Entry struct {
	Rank        int       `json:"rank"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	TotalScore  int       `json:"total_score"`
	GamesPlayed int       `json:"games_played"`
	Wins        int       `json:"wins"`
}

// ServiceOptions configures leaderboard service behavior.
type ServiceOptions struct {
	TopN           int
	PubSubChannel  string
	RedisKeyPrefix string
	// HostEndPenalty is taken from every non-winner of a round the host
	// ended early.
	HostEndPenalty int
}

// Service keeps cumulative standings in Redis and publishes changes over
// Pub/Sub. It is a history sink: every finished round updates it once.
type Service struct {
	redis   *redis.Client
	logger  zerolog.Logger
	topN    int
	channel string
	prefix  string
	penalty int
}

var _ history.Sink = (*Service)(nil)

func NewService(redis *redis.Client, logger zerolog.Logger, opts ServiceOptions) *Service {
	if opts.TopN <= 0 {
		opts.TopN = 50
	}
	if opts.PubSubChannel == "" {
		opts.PubSubChannel = DefaultChannel
	}
	if opts.RedisKeyPrefix == "" {
		opts.RedisKeyPrefix = "lb"
	}
	return &Service{
		redis:   redis,
		logger:  logger.With().Str("component", "leaderboard").Logger(),
		topN:    opts.TopN,
		channel: opts.PubSubChannel,
		prefix:  opts.RedisKeyPrefix,
		penalty: opts.HostEndPenalty,
	}
}

func (s *Service) Name() string { return "leaderboard" }

// Store applies rec to the standings. A record is applied at most once
// even when the history worker retries it.
func (s *Service) Store(ctx context.Context, rec history.Record) error {
	deltas := roundDeltas(rec, s.penalty)
	if len(deltas) == 0 {
		return nil
	}

	first, err := s.redis.SetNX(ctx, s.appliedKey(rec.ID), 1, appliedTTL).Result()
	if err != nil {
		return fmt.Errorf("mark round applied: %w", err)
	}
	if !first {
		return nil
	}

	pipe := s.redis.TxPipeline()
	for _, d := range deltas {
		metaKey := s.metaKey(d.UserID)
		pipe.ZIncrBy(ctx, s.totalKey(), float64(d.Score), d.UserID.String())
		pipe.HIncrBy(ctx, metaKey, "games", 1)
		pipe.HIncrBy(ctx, metaKey, "wins", int64(boolToInt(d.Won)))
		pipe.HSet(ctx, metaKey, "display_name", d.DisplayName)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// let the retry apply it again
		s.redis.Del(context.WithoutCancel(ctx), s.appliedKey(rec.ID))
		return fmt.Errorf("update standings: %w", err)
	}

	s.publishUpdate(ctx)
	return nil
}

// Top returns up to limit entries by total score.
func (s *Service) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	results, err := s.redis.ZRevRangeWithScores(ctx, s.totalKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		userID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		entry, err := s.readMeta(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read leaderboard metadata")
			continue
		}
		entry.Rank = i + 1
		entry.TotalScore = int(z.Score)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) publishUpdate(ctx context.Context) {
	entries, err := s.Top(ctx, 10)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to collect leaderboard update")
		return
	}
	data, err := json.Marshal(ws.LeaderboardUpdatePayload{Top: toWSEntries(entries)})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal leaderboard update")
		return
	}
	if err := s.redis.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish leaderboard update")
	}
}

func (s *Service) readMeta(ctx context.Context, userID uuid.UUID) (Entry, error) {
	data, err := s.redis.HGetAll(ctx, s.metaKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, err
	}
	return Entry{
		UserID:      userID,
		DisplayName: data["display_name"],
		GamesPlayed: parseInt(data["games"]),
		Wins:        parseInt(data["wins"]),
	}, nil
}

func (s *Service) totalKey() string {
	return s.prefix + ":total"
}

func (s *Service) metaKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:meta:%s", s.prefix, userID)
}

func (s *Service) appliedKey(recordID uuid.UUID) string {
	return fmt.Sprintf("%s:applied:%s", s.prefix, recordID)
}

type delta struct {
	UserID      uuid.UUID
	DisplayName string
	Score       int
	Won         bool
}

// roundDeltas turns a finished round into per-player standing changes.
// Rounds removed with the room, closing rosters and late submissions do not count.
func roundDeltas(rec history.Record, hostEndPenalty int) []delta {
	if !rec.Scored() || rec.Reason == history.ReasonDeleted {
		return nil
	}
	out := make([]delta, 0, len(rec.Participants))
	for _, p := range rec.Participants {
		d := delta{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Won:         rec.Winner(p.UserID),
		}
		if rec.Reason == history.ReasonHostEnded && !d.Won {
			d.Score -= hostEndPenalty
		}
		out = append(out, d)
	}
	return out
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseInt(val string) int {
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return i
}

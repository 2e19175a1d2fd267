package question

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Store is the durable question source.
type Store interface {
	List(ctx context.Context, f Filter) ([]Question, error)
	Get(ctx context.Context, id uuid.UUID) (Question, error)
	Create(ctx context.Context, d Draft, source string) (Question, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Random(ctx context.Context, c Criteria) (Question, error)
}

// PoolCache holds candidate pools (implemented by the Redis-backed Cache).
type PoolCache interface {
	Get(ctx context.Context, c Criteria) ([]Question, error)
	Set(ctx context.Context, c Criteria, pool []Question) error
	Invalidate(ctx context.Context, c Criteria) error
}

// Generator produces fallback questions when the store has none.
type Generator interface {
	Generate(ctx context.Context, c Criteria) (Draft, error)
	Enqueue(ctx context.Context, c Criteria, count int) error
}

type ServiceOptions struct {
	// PoolLimit caps how many candidates are loaded per criteria.
	PoolLimit int
	// LowWater triggers a background refill when a pool is this small.
	LowWater int
}

// Service picks round questions: cache, then store, then generator.
type Service struct {
	store     Store
	cache     PoolCache
	generator Generator
	opts      ServiceOptions
	logger    zerolog.Logger

	fill   singleflight.Group
	warmCh chan Criteria
}

func NewService(store Store, cache PoolCache, generator Generator, opts ServiceOptions, logger zerolog.Logger) *Service {
	if opts.PoolLimit <= 0 {
		opts.PoolLimit = 200
	}
	return &Service{
		store:     store,
		cache:     cache,
		generator: generator,
		opts:      opts,
		logger:    logger.With().Str("component", "question_service").Logger(),
		warmCh:    make(chan Criteria, 16),
	}
}

// Pick returns a random question matching criteria.
func (s *Service) Pick(ctx context.Context, c Criteria) (Question, error) {
	if err := c.validate(); err != nil {
		return Question{}, err
	}

	if s.cache == nil {
		q, err := s.store.Random(ctx, c)
		if errors.Is(err, ErrNoQuestion) {
			return s.generate(ctx, c)
		}
		return q, err
	}

	pool, err := s.pool(ctx, c)
	if err != nil {
		return Question{}, err
	}
	if len(pool) == 0 {
		return s.generate(ctx, c)
	}
	if len(pool) <= s.opts.LowWater {
		s.requestWarm(c)
	}
	return pool[rand.IntN(len(pool))], nil
}

// Refresh reloads the pool for c from the store into the cache.
func (s *Service) Refresh(ctx context.Context, c Criteria) (int, error) {
	pool, err := s.load(ctx, c)
	return len(pool), err
}

func (s *Service) pool(ctx context.Context, c Criteria) ([]Question, error) {
	if cached, err := s.cache.Get(ctx, c); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("question cache read failed")
	}

	v, err, _ := s.fill.Do(c.key(), func() (interface{}, error) {
		return s.load(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Question), nil
}

func (s *Service) load(ctx context.Context, c Criteria) ([]Question, error) {
	pool, err := s.store.List(ctx, Filter{Difficulty: c.Difficulty, QuestionType: c.QuestionType, Limit: s.opts.PoolLimit})
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	pool = playable(pool)
	if len(pool) > 0 && s.cache != nil {
		if err := s.cache.Set(ctx, c, pool); err != nil {
			s.logger.Warn().Err(err).Msg("question cache write failed")
		}
	}
	return pool, nil
}

func (s *Service) generate(ctx context.Context, c Criteria) (Question, error) {
	if s.generator == nil {
		return Question{}, fmt.Errorf("%s/%s: %w", c.Difficulty, c.QuestionType, ErrNoQuestion)
	}
	draft, err := s.generator.Generate(ctx, c)
	if err != nil {
		s.logger.Warn().Err(err).Str("difficulty", c.Difficulty).Str("question_type", c.QuestionType).Msg("generator fallback failed")
		return Question{}, fmt.Errorf("%s/%s: %w", c.Difficulty, c.QuestionType, ErrNoQuestion)
	}
	draft.Difficulty = c.Difficulty
	draft.QuestionType = c.QuestionType
	if err := ValidateDraft(draft); err != nil {
		return Question{}, fmt.Errorf("generated question rejected: %w", ErrNoQuestion)
	}
	q, err := s.store.Create(ctx, draft, SourceGenerated)
	if err != nil {
		return Question{}, err
	}
	s.invalidate(ctx, c)
	return q, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Question, error) {
	if f.Difficulty != "" && !validDifficulty(f.Difficulty) {
		return nil, fmt.Errorf("difficulty %q: %w", f.Difficulty, ErrInvalidFilter)
	}
	if f.QuestionType != "" && !validType(f.QuestionType) {
		return nil, fmt.Errorf("question type %q: %w", f.QuestionType, ErrInvalidFilter)
	}
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Question, error) {
	return s.store.Get(ctx, id)
}

// Create stores a curated question and drops the stale pool.
func (s *Service) Create(ctx context.Context, d Draft) (Question, error) {
	if d.QuestionType == "" {
		d.QuestionType = TypeNormal
	}
	if err := ValidateDraft(d); err != nil {
		return Question{}, err
	}
	q, err := s.store.Create(ctx, d, SourceCurated)
	if err != nil {
		return Question{}, err
	}
	s.invalidate(ctx, Criteria{Difficulty: q.Difficulty, QuestionType: q.QuestionType})
	return q, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, Criteria{Difficulty: q.Difficulty, QuestionType: q.QuestionType})
	return nil
}

func (s *Service) invalidate(ctx context.Context, c Criteria) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, c); err != nil {
		s.logger.Warn().Err(err).Msg("question cache invalidate failed")
	}
}

func (s *Service) requestWarm(c Criteria) {
	select {
	case s.warmCh <- c:
	default:
	}
}

// WarmRequests feeds the warm worker.
func (s *Service) WarmRequests() <-chan Criteria {
	return s.warmCh
}

// playable drops questions a round could not grade.
func playable(qs []Question) []Question {
	out := qs[:0]
	for _, q := range qs {
		if len(q.TestCases) > 0 {
			out = append(out, q)
		}
	}
	return out
}

package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/history"
	"github.com/gokatarajesh/codearena/internal/logging"
	"github.com/gokatarajesh/codearena/internal/match/events"
	"github.com/gokatarajesh/codearena/internal/match/scoring"
	"github.com/gokatarajesh/codearena/internal/metrics"
	"github.com/gokatarajesh/codearena/internal/question"
	"github.com/gokatarajesh/codearena/internal/verdict"
)

const (
	inboxSize        = 64
	joinCodeAttempts = 10
)

// QuestionSource supplies the problem bound to a round.
type QuestionSource interface {
	Pick(ctx context.Context, criteria question.Criteria) (question.Question, error)
}

// Recorder accepts finished rounds for durable storage. It must not block.
type Recorder interface {
	Record(rec history.Record)
}

// Options carries round defaults.
type Options struct {
	DefaultDuration   time.Duration
	DefaultDifficulty string
	DefaultTier       string
	DefaultMaxPlayers int
	ExecutionTimeout  time.Duration
	Scoring           scoring.ScoringConfig
}

// Deps are the coordinator's collaborators. Store and Mirror are optional.
type Deps struct {
	Executor  execution.Executor
	Questions QuestionSource
	Recorder  Recorder
	Events    *events.Broadcaster
	Store     RoomStore
	Mirror    *Mirror
	Clock     Clock
}

// Coordinator owns the live rooms. Every mutation of a room runs on that
// room's actor goroutine, so rooms never contend with each other.
type Coordinator struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*actor
	codes map[string]uuid.UUID

	executor  execution.Executor
	questions QuestionSource
	recorder  Recorder
	events    *events.Broadcaster
	store     RoomStore
	mirror    *Mirror
	clock     Clock
	engine    *scoring.Engine
	opts      Options
	quit      chan struct{}
	quitOnce  sync.Once
	logger    zerolog.Logger
}

// NewCoordinator builds an empty registry.
func NewCoordinator(deps Deps, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 300 * time.Second
	}
	if opts.DefaultDifficulty == "" {
		opts.DefaultDifficulty = question.DifficultyMedium
	}
	if opts.DefaultTier == "" {
		opts.DefaultTier = "beginner"
	}
	if opts.DefaultMaxPlayers < 2 {
		opts.DefaultMaxPlayers = 4
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = 3 * time.Minute
	}
	if opts.Scoring.BaseScore == 0 {
		opts.Scoring = scoring.DefaultScoringConfig()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Events == nil {
		deps.Events = events.NewBroadcaster(0, logger)
	}

	return &Coordinator{
		rooms:     make(map[uuid.UUID]*actor),
		codes:     make(map[string]uuid.UUID),
		executor:  deps.Executor,
		questions: deps.Questions,
		recorder:  deps.Recorder,
		events:    deps.Events,
		store:     deps.Store,
		mirror:    deps.Mirror,
		clock:     deps.Clock,
		engine:    scoring.NewEngine(opts.Scoring),
		opts:      opts,
		quit:      make(chan struct{}),
		logger:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// Events exposes the broadcaster rooms publish to.
func (c *Coordinator) Events() *events.Broadcaster {
	return c.events
}

// actor serializes all work on one room.
type actor struct {
	id     uuid.UUID
	code   string
	room   *Room
	inbox  chan func()
	done   chan struct{}
	snap   atomic.Pointer[Snapshot]
	timer  Timer
	logger zerolog.Logger

	// exitMu guards room once run has returned
	exitMu sync.Mutex
}

func (a *actor) run(quit <-chan struct{}) {
	defer close(a.done)
	for {
		select {
		case job := <-a.inbox:
			job()
			if a.room.closed {
				return
			}
		case <-quit:
			if a.timer != nil {
				a.timer.Stop()
			}
			return
		}
	}
}

func (a *actor) snapshot() Snapshot {
	return *a.snap.Load()
}

type reply struct {
	snap Snapshot
	err  error
}

// exec runs fn on the room's actor and returns the committed snapshot.
func (c *Coordinator) exec(ctx context.Context, a *actor, fn func(r *Room) error) (Snapshot, error) {
	out := make(chan reply, 1)
	job := func() {
		err := fn(a.room)
		out <- reply{snap: c.settle(a), err: err}
	}

	select {
	case a.inbox <- job:
	case <-a.done:
		return Snapshot{}, fmt.Errorf("%w: room %s is closed", ErrNotFound, a.id)
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case res := <-out:
		return res.snap, res.err
	case <-a.done:
		select {
		case res := <-out:
			return res.snap, res.err
		default:
			return Snapshot{}, fmt.Errorf("%w: room %s is closed", ErrNotFound, a.id)
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// settle publishes what a mutation committed. Runs on the actor.
func (c *Coordinator) settle(a *actor) Snapshot {
	evs, recs := a.room.drain()
	for _, ev := range evs {
		c.events.Publish(ev)
	}
	c.record(a, recs)

	if a.room.status != StatusInProgress && a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	snap := a.room.Snapshot()
	a.snap.Store(&snap)
	if c.mirror != nil {
		c.mirror.Mark(snap)
	}
	if a.room.closed {
		c.retire(a)
	}
	return snap
}

func (c *Coordinator) record(a *actor, recs []history.Record) {
	for _, rec := range recs {
		if rec.Scored() {
			metrics.RoundsFinished.WithLabelValues(rec.Mode, rec.Reason).Inc()
			a.logger.Info().
				Int("round", rec.Round).
				Str("reason", rec.Reason).
				Str("winner", rec.WinnerName).
				Msg("round finished")
		} else {
			a.logger.Info().
				Int("round", rec.Round).
				Str("kind", rec.Kind).
				Str("reason", rec.Reason).
				Msg("audit record kept")
		}
		if c.recorder != nil {
			c.recorder.Record(rec)
		}
	}
}

// commitAfterExit commits t on a room whose actor has stopped because the
// room closed or the coordinator shut down.
func (c *Coordinator) commitAfterExit(a *actor, t ticket, v verdict.Verdict, elapsed int64) (Submission, Snapshot) {
	a.exitMu.Lock()
	defer a.exitMu.Unlock()

	sub := a.room.Commit(t, v, elapsed, c.clock.Now())
	// nobody is subscribed any more; only the records matter
	_, recs := a.room.drain()
	c.record(a, recs)

	snap := a.room.Snapshot()
	a.snap.Store(&snap)
	return sub, snap
}

func (c *Coordinator) retire(a *actor) {
	c.mu.Lock()
	if cur, ok := c.rooms[a.id]; ok && cur == a {
		delete(c.rooms, a.id)
		delete(c.codes, a.code)
		metrics.ActiveRooms.Dec()
	}
	c.mu.Unlock()

	c.events.Close(a.id)
	a.logger.Info().Msg("room retired")
}

func (c *Coordinator) lookup(roomID uuid.UUID) (*actor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
	}
	return a, nil
}

// allocateCode reserves a join code locally and, when a store is
// configured, across instances.
func (c *Coordinator) allocateCode(ctx context.Context, roomID uuid.UUID) (string, error) {
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}

		c.mu.Lock()
		_, taken := c.codes[code]
		if !taken {
			c.codes[code] = roomID
		}
		c.mu.Unlock()
		if taken {
			continue
		}

		if c.store == nil {
			return code, nil
		}
		ok, err := c.store.ReserveJoinCode(ctx, code, roomID)
		if err != nil {
			// local uniqueness still holds
			c.logger.Warn().Err(err).Str("join_code", code).Msg("join code reservation unavailable")
			return code, nil
		}
		if ok {
			return code, nil
		}

		c.mu.Lock()
		delete(c.codes, code)
		c.mu.Unlock()
	}
	return "", errors.New("could not allocate a unique join code")
}

// CreateRoom registers a new room hosted by params.Host.
func (c *Coordinator) CreateRoom(ctx context.Context, params CreateParams) (Snapshot, error) {
	if params.Host.UserID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("%w: host is required", ErrInvalidInput)
	}
	if params.MaxPlayers == 0 {
		params.MaxPlayers = c.opts.DefaultMaxPlayers
	}
	if params.Mode == "" {
		params.Mode = ModeNormal
	}

	id := uuid.New()
	code, err := c.allocateCode(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if strings.TrimSpace(params.Name) == "" {
		params.Name = "Room " + code
	}

	room, err := newRoom(id, code, params, c.engine, c.clock.Now())
	if err != nil {
		c.mu.Lock()
		delete(c.codes, code)
		c.mu.Unlock()
		if c.store != nil {
			_ = c.store.ReleaseJoinCode(ctx, code, id)
		}
		return Snapshot{}, err
	}

	a := &actor{
		id:     id,
		code:   code,
		room:   room,
		inbox:  make(chan func(), inboxSize),
		done:   make(chan struct{}),
		logger: logging.Room(c.logger, id.String(), code),
	}
	initial := room.Snapshot()
	a.snap.Store(&initial)

	c.mu.Lock()
	c.rooms[id] = a
	c.mu.Unlock()
	metrics.ActiveRooms.Inc()
	go a.run(c.quit)

	a.logger.Info().
		Str("host_id", params.Host.UserID.String()).
		Str("mode", string(params.Mode)).
		Int("max_players", params.MaxPlayers).
		Msg("room created")

	// publishes the host's PlayerJoined
	return c.exec(ctx, a, func(*Room) error { return nil })
}

// JoinRoom adds p to the room roster.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID uuid.UUID, p Participant) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.exec(ctx, a, func(r *Room) error {
		return r.Join(p, c.clock.Now())
	})
}

// JoinByCode resolves a join code and joins that room.
func (c *Coordinator) JoinByCode(ctx context.Context, code string, p Participant) (Snapshot, error) {
	snap, err := c.GetRoomByCode(code)
	if err != nil {
		return Snapshot{}, err
	}
	return c.JoinRoom(ctx, snap.ID, p)
}

// LeaveRoom removes userID from the room.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.exec(ctx, a, func(r *Room) error {
		return r.Leave(userID, c.clock.Now())
	})
}

// StartRound binds a question and opens a timed round.
func (c *Coordinator) StartRound(ctx context.Context, roomID, requester uuid.UUID, params StartParams) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	// fail fast before touching the problem source; Start re-checks on the actor
	current := a.snapshot()
	if err := checkStart(current.HostID, current.Status, len(current.Participants), requester); err != nil {
		return Snapshot{}, err
	}

	if params.Mode == "" {
		params.Mode = current.Mode
	}
	if _, err := scoring.For(params.Mode); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if params.Difficulty == "" {
		params.Difficulty = c.opts.DefaultDifficulty
	}
	if params.Tier == "" {
		params.Tier = c.opts.DefaultTier
	}
	if params.DurationSeconds <= 0 {
		params.DurationSeconds = int(c.opts.DefaultDuration / time.Second)
	}

	q, err := c.questions.Pick(ctx, question.Criteria{
		Difficulty:   params.Difficulty,
		QuestionType: string(params.Mode),
	})
	if err != nil {
		if errors.Is(err, question.ErrNoQuestion) || errors.Is(err, question.ErrNotFound) {
			return Snapshot{}, fmt.Errorf("%w: %s %s", ErrNoQuestionAvailable, params.Difficulty, params.Mode)
		}
		if errors.Is(err, question.ErrInvalidFilter) {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Snapshot{}, fmt.Errorf("pick question: %w", err)
	}

	return c.exec(ctx, a, func(r *Room) error {
		if err := r.Start(requester, params, q, c.clock.Now()); err != nil {
			return err
		}
		round := r.round
		a.timer = c.clock.AfterFunc(r.duration, func() {
			c.expire(roomID, round)
		})
		a.logger.Info().
			Int("round", round).
			Str("question_id", q.ID.String()).
			Int("duration_seconds", params.DurationSeconds).
			Msg("round started")
		return nil
	})
}

// expire is the round timer callback.
func (c *Coordinator) expire(roomID uuid.UUID, round int) {
	a, err := c.lookup(roomID)
	if err != nil {
		return
	}
	_, err = c.exec(context.Background(), a, func(r *Room) error {
		return r.ForceEnd(round, history.ReasonTimeExpired, c.clock.Now())
	})
	if err != nil && !errors.Is(err, ErrInvalidState) && !errors.Is(err, ErrNotFound) {
		a.logger.Error().Err(err).Int("round", round).Msg("timer force end failed")
	}
}

// SubmitSolution evaluates code for userID. The slot is reserved in arrival
// order, the sandbox runs off the actor, and the result is committed back
// on the actor. Sandbox failures are recorded as failing submissions.
func (c *Coordinator) SubmitSolution(ctx context.Context, roomID, userID uuid.UUID, code, language string) (SubmitResult, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if strings.TrimSpace(code) == "" {
		return SubmitResult{}, fmt.Errorf("%w: code is empty", ErrInvalidInput)
	}
	if _, ok := execution.LanguageID(language); !ok {
		return SubmitResult{}, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, language)
	}

	a, err := c.lookup(roomID)
	if err != nil {
		return SubmitResult{}, err
	}

	var t ticket
	var mode Mode
	if _, err := c.exec(ctx, a, func(r *Room) error {
		var err error
		t, err = r.Reserve(userID, code, language, c.clock.Now())
		mode = r.mode
		return err
	}); err != nil {
		return SubmitResult{}, err
	}

	// the slot is taken; finish evaluating even if the caller goes away
	v, elapsed, outcome := c.evaluate(context.WithoutCancel(ctx), a.logger, t)

	var sub Submission
	snap, err := c.exec(context.WithoutCancel(ctx), a, func(r *Room) error {
		sub = r.Commit(t, v, elapsed, c.clock.Now())
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		// the room closed while the sandbox ran
		<-a.done
		sub, snap = c.commitAfterExit(a, t, v, elapsed)
		err = nil
	}
	if err != nil {
		return SubmitResult{}, err
	}
	if sub.Late {
		outcome = "late"
		a.logger.Info().Str("user_id", userID.String()).Int("round", t.round).Msg("late submission kept for audit")
	}
	metrics.Submissions.WithLabelValues(string(mode), outcome).Inc()

	return SubmitResult{Submission: sub, Room: snap}, nil
}

func (c *Coordinator) evaluate(ctx context.Context, logger zerolog.Logger, t ticket) (verdict.Verdict, int64, string) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ExecutionTimeout)
	defer cancel()

	report, err := c.executor.Execute(ctx, t.code, t.language, t.cases)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("user_id", t.userID.String()).
			Str("language", t.language).
			Msg("sandbox execution failed")
		return verdict.ExecutionFailed(), 0, "execution_failed"
	}

	v := verdict.Reduce(report)
	outcome := "incorrect"
	if v.IsCorrect {
		outcome = "correct"
	}
	return v, report.ExecutionTimeMs, outcome
}

// ForceEndRound lets the host end the live round early.
func (c *Coordinator) ForceEndRound(ctx context.Context, roomID, requester uuid.UUID) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.exec(ctx, a, func(r *Room) error {
		return r.End(requester, c.clock.Now())
	})
}

// Disqualify records a failing submission for target.
func (c *Coordinator) Disqualify(ctx context.Context, roomID, requester, target uuid.UUID, reason string) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.exec(ctx, a, func(r *Room) error {
		return r.Disqualify(requester, target, reason, c.clock.Now())
	})
}

// Rematch reopens a finished room with the same roster.
func (c *Coordinator) Rematch(ctx context.Context, roomID, requester uuid.UUID) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.exec(ctx, a, func(r *Room) error {
		return r.Rematch(requester, c.clock.Now())
	})
}

// DeleteRoom closes the room and removes it from the registry.
func (c *Coordinator) DeleteRoom(ctx context.Context, roomID, requester uuid.UUID) error {
	a, err := c.lookup(roomID)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, a, func(r *Room) error {
		return r.Delete(requester, c.clock.Now())
	})
	return err
}

// GetRoom returns the last committed snapshot.
func (c *Coordinator) GetRoom(roomID uuid.UUID) (Snapshot, error) {
	a, err := c.lookup(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return a.snapshot(), nil
}

// GetRoomByCode resolves a join code, case-insensitively.
func (c *Coordinator) GetRoomByCode(code string) (Snapshot, error) {
	code = NormalizeJoinCode(code)
	c.mu.RLock()
	id, ok := c.codes[code]
	a := c.rooms[id]
	c.mu.RUnlock()
	if !ok || a == nil {
		return Snapshot{}, fmt.Errorf("%w: join code %s", ErrNotFound, code)
	}
	return a.snapshot(), nil
}

// ListRooms returns matching rooms, oldest first.
func (c *Coordinator) ListRooms(filter ListFilter) []Snapshot {
	c.mu.RLock()
	actors := make([]*actor, 0, len(c.rooms))
	for _, a := range c.rooms {
		actors = append(actors, a)
	}
	c.mu.RUnlock()

	out := make([]Snapshot, 0, len(actors))
	for _, a := range actors {
		if s := a.snapshot(); filter.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown stops every actor and pending round timer.
func (c *Coordinator) Shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
}

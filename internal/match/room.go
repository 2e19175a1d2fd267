package match

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/history"
	"github.com/gokatarajesh/codearena/internal/match/events"
	"github.com/gokatarajesh/codearena/internal/match/scoring"
	"github.com/gokatarajesh/codearena/internal/question"
	"github.com/gokatarajesh/codearena/internal/verdict"
)

// Room owns the authoritative state of one room. It is not safe for
// concurrent use; the coordinator confines every Room to its actor.
// Each mutation appends the events it caused to an outbox that the actor
// drains and publishes after the mutation returns.
type Room struct {
	id         uuid.UUID
	joinCode   string
	name       string
	hostID     uuid.UUID
	maxPlayers int
	createdAt  time.Time
	engine     *scoring.Engine

	status       Status
	mode         Mode
	policy       scoring.Policy
	participants []Participant
	closed       bool

	// current round
	round       int
	question    *question.Question
	difficulty  string
	tier        string
	startedAt   time.Time
	duration    time.Duration
	expected    []uuid.UUID
	departed    map[uuid.UUID]bool
	submissions map[uuid.UUID]Submission
	order       []uuid.UUID
	pending     map[uuid.UUID]ticket
	late        []Submission
	winnerID    uuid.UUID
	hasWinner   bool
	endedAt     time.Time
	endReason   string

	seq     uint64
	outbox  []events.Event
	results []history.Record
}

// ticket is a reserved submission slot whose evaluation runs off the actor.
type ticket struct {
	round         int
	questionID    uuid.UUID
	questionTitle string
	userID        uuid.UUID
	code          string
	language      string
	submittedAt   time.Time
	cases         []execution.TestCase
}

func newRoom(id uuid.UUID, joinCode string, params CreateParams, engine *scoring.Engine, now time.Time) (*Room, error) {
	policy, err := scoring.For(params.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if params.MaxPlayers < 2 {
		return nil, fmt.Errorf("%w: max players must be at least 2", ErrInvalidInput)
	}

	host := params.Host
	host.JoinedAt = now
	r := &Room{
		id:           id,
		joinCode:     joinCode,
		name:         params.Name,
		hostID:       host.UserID,
		maxPlayers:   params.MaxPlayers,
		createdAt:    now,
		engine:       engine,
		status:       StatusWaiting,
		mode:         params.Mode,
		policy:       policy,
		participants: []Participant{host},
	}
	r.resetRound()
	r.emit(events.PlayerJoined, PlayerJoinedPayload{Participant: host, Count: 1}, now)
	return r, nil
}

func (r *Room) emit(typ events.Type, payload any, now time.Time) {
	r.seq++
	r.outbox = append(r.outbox, events.Event{
		RoomID:  r.id,
		Seq:     r.seq,
		Type:    typ,
		At:      now,
		Payload: payload,
	})
}

// drain hands over everything committed since the last drain.
func (r *Room) drain() ([]events.Event, []history.Record) {
	evs, recs := r.outbox, r.results
	r.outbox, r.results = nil, nil
	return evs, recs
}

func (r *Room) indexOf(userID uuid.UUID) int {
	for i, p := range r.participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (r *Room) displayName(userID uuid.UUID) string {
	if i := r.indexOf(userID); i >= 0 {
		return r.participants[i].DisplayName
	}
	return ""
}

// nameOf also resolves players who left after submitting.
func (r *Room) nameOf(userID uuid.UUID) string {
	if name := r.displayName(userID); name != "" {
		return name
	}
	return r.submissions[userID].DisplayName
}

func (r *Room) deadline() time.Time {
	return r.startedAt.Add(r.duration)
}

func (r *Room) resetRound() {
	r.question = nil
	r.startedAt = time.Time{}
	r.duration = 0
	r.expected = nil
	r.departed = make(map[uuid.UUID]bool)
	r.submissions = make(map[uuid.UUID]Submission)
	r.order = nil
	r.pending = make(map[uuid.UUID]ticket)
	r.late = nil
	r.winnerID, r.hasWinner = uuid.Nil, false
	r.endedAt = time.Time{}
	r.endReason = ""
}

// Join adds p to the roster. Joining twice is a no-op.
func (r *Room) Join(p Participant, now time.Time) error {
	if r.indexOf(p.UserID) >= 0 {
		return nil
	}
	if r.status != StatusWaiting {
		return fmt.Errorf("%w: room is %s", ErrInvalidState, r.status)
	}
	if len(r.participants) >= r.maxPlayers {
		return fmt.Errorf("%w: %d/%d players", ErrFull, len(r.participants), r.maxPlayers)
	}

	p.JoinedAt = now
	r.participants = append(r.participants, p)
	r.emit(events.PlayerJoined, PlayerJoinedPayload{Participant: p, Count: len(r.participants)}, now)
	return nil
}

// Leave removes userID. The host leaving ends any live round and closes the room.
func (r *Room) Leave(userID uuid.UUID, now time.Time) error {
	i := r.indexOf(userID)
	if i < 0 {
		return fmt.Errorf("%w: user is not in room", ErrNotFound)
	}
	p := r.participants[i]

	if userID == r.hostID {
		if r.status == StatusInProgress {
			r.finish(history.ReasonHostLeft, true, now)
		} else {
			r.results = append(r.results, r.closingRecord(history.ReasonHostLeft, now))
		}
		r.participants = append(r.participants[:i:i], r.participants[i+1:]...)
		r.emit(events.PlayerLeft, PlayerLeftPayload{UserID: userID, DisplayName: p.DisplayName, Count: len(r.participants)}, now)
		r.close(history.ReasonHostLeft, now)
		return nil
	}

	r.participants = append(r.participants[:i:i], r.participants[i+1:]...)
	r.emit(events.PlayerLeft, PlayerLeftPayload{UserID: userID, DisplayName: p.DisplayName, Count: len(r.participants)}, now)

	// settled results stay as they ended until the next rematch
	if r.status == StatusInProgress {
		delete(r.pending, userID)
		if _, ok := r.submissions[userID]; ok {
			delete(r.submissions, userID)
			r.order = removeID(r.order, userID)
		}
		r.departed[userID] = true
		if r.policy.Complete(r.roundState(false)) {
			r.finish(history.ReasonCompleted, false, now)
		}
	}
	return nil
}

func (r *Room) startGuard(requester uuid.UUID) error {
	return checkStart(r.hostID, r.status, len(r.participants), requester)
}

func checkStart(hostID uuid.UUID, status Status, players int, requester uuid.UUID) error {
	if requester != hostID {
		return fmt.Errorf("%w: only the host can start a round", ErrForbidden)
	}
	if status != StatusWaiting {
		return fmt.Errorf("%w: room is %s", ErrInvalidState, status)
	}
	if players < 2 {
		return fmt.Errorf("%w: need at least 2 participants", ErrInvalidState)
	}
	return nil
}

// Start binds q and opens a round. params must already carry defaults.
func (r *Room) Start(requester uuid.UUID, params StartParams, q question.Question, now time.Time) error {
	if err := r.startGuard(requester); err != nil {
		return err
	}
	policy, err := scoring.For(params.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if params.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if len(q.TestCases) == 0 {
		return fmt.Errorf("%w: question %s has no test cases", ErrNoQuestionAvailable, q.ID)
	}

	r.resetRound()
	r.round++
	r.status = StatusInProgress
	r.mode = params.Mode
	r.policy = policy
	r.question = &q
	r.difficulty = params.Difficulty
	r.tier = params.Tier
	r.startedAt = now
	r.duration = time.Duration(params.DurationSeconds) * time.Second
	r.expected = make([]uuid.UUID, len(r.participants))
	for i, p := range r.participants {
		r.expected[i] = p.UserID
	}

	r.emit(events.RoundStarted, RoundStartedPayload{
		Round:           r.round,
		Mode:            r.mode,
		Difficulty:      r.difficulty,
		Tier:            r.tier,
		Question:        q,
		StartedAt:       now,
		DurationSeconds: params.DurationSeconds,
		EndsAt:          r.deadline(),
		Participants:    append([]uuid.UUID(nil), r.expected...),
	}, now)
	return nil
}

// Reserve claims userID's single submission slot for this round.
func (r *Room) Reserve(userID uuid.UUID, code, language string, now time.Time) (ticket, error) {
	if r.status != StatusInProgress {
		return ticket{}, fmt.Errorf("%w: room is %s", ErrInvalidState, r.status)
	}
	if r.indexOf(userID) < 0 {
		return ticket{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	if _, ok := r.submissions[userID]; ok {
		return ticket{}, ErrAlreadySubmitted
	}
	if _, ok := r.pending[userID]; ok {
		return ticket{}, fmt.Errorf("%w: evaluation in progress", ErrAlreadySubmitted)
	}
	if !now.Before(r.deadline()) {
		return ticket{}, fmt.Errorf("%w: round time is up", ErrInvalidState)
	}

	t := ticket{
		round:         r.round,
		questionID:    r.question.ID,
		questionTitle: r.question.Title,
		userID:        userID,
		code:          code,
		language:      language,
		submittedAt:   now,
		cases:         r.question.TestCases,
	}
	r.pending[userID] = t
	return t, nil
}

// Commit records the graded outcome of t. A ticket whose round already
// ended, or whose slot was vacated, is kept only as a late submission and
// handed to history as an unscored audit record.
func (r *Room) Commit(t ticket, v verdict.Verdict, executionTimeMs int64, now time.Time) Submission {
	sub := Submission{
		UserID:          t.userID,
		DisplayName:     r.displayName(t.userID),
		Round:           t.round,
		Code:            t.code,
		Language:        t.language,
		SubmittedAt:     t.submittedAt,
		IsCorrect:       v.IsCorrect,
		Feedback:        v.Feedback,
		ExecutionTimeMs: executionTimeMs,
		Score:           r.engine.Score(v.IsCorrect, executionTimeMs),
		CodeLength:      scoring.CodeLength(t.code),
	}

	cur, ok := r.pending[t.userID]
	if !ok || r.status != StatusInProgress || t.round != r.round || !cur.submittedAt.Equal(t.submittedAt) {
		sub.Late = true
		r.late = append(r.late, sub)
		r.results = append(r.results, r.lateRecord(t, sub, now))
		return sub
	}

	delete(r.pending, t.userID)
	r.submissions[t.userID] = sub
	r.order = append(r.order, t.userID)
	r.emit(events.SubmissionRecorded, SubmissionRecordedPayload{
		Round:           sub.Round,
		UserID:          sub.UserID,
		DisplayName:     sub.DisplayName,
		Language:        sub.Language,
		IsCorrect:       sub.IsCorrect,
		Feedback:        sub.Feedback,
		Score:           sub.Score,
		ExecutionTimeMs: sub.ExecutionTimeMs,
		CodeLength:      sub.CodeLength,
		SubmittedAt:     sub.SubmittedAt,
	}, now)

	if r.policy.Complete(r.roundState(false)) {
		r.finish(history.ReasonCompleted, false, now)
	}
	return sub
}

// Disqualify records a failing submission for target. Participants may
// disqualify themselves; the host may disqualify anyone.
func (r *Room) Disqualify(requester, target uuid.UUID, reason string, now time.Time) error {
	if r.status != StatusInProgress {
		return fmt.Errorf("%w: room is %s", ErrInvalidState, r.status)
	}
	if r.indexOf(target) < 0 {
		return fmt.Errorf("%w: user is not in room", ErrNotFound)
	}
	if requester != target && requester != r.hostID {
		return fmt.Errorf("%w: only the host can disqualify others", ErrForbidden)
	}
	if _, ok := r.submissions[target]; ok {
		return ErrAlreadySubmitted
	}

	delete(r.pending, target)
	dq := verdict.Disqualified()
	r.submissions[target] = Submission{
		UserID:       target,
		DisplayName:  r.displayName(target),
		Round:        r.round,
		SubmittedAt:  now,
		Feedback:     dq.Feedback,
		Disqualified: true,
	}
	r.order = append(r.order, target)
	r.emit(events.Disqualified, DisqualifiedPayload{Round: r.round, UserID: target, By: requester, Reason: reason}, now)

	if r.policy.Complete(r.roundState(false)) {
		r.finish(history.ReasonCompleted, false, now)
	}
	return nil
}

// ForceEnd finishes the live round. round guards against stale timers;
// zero matches any round.
func (r *Room) ForceEnd(round int, reason string, now time.Time) error {
	if r.status != StatusInProgress || (round != 0 && round != r.round) {
		return fmt.Errorf("%w: no round in progress", ErrInvalidState)
	}
	r.finish(reason, true, now)
	return nil
}

// End is the host's explicit force end.
func (r *Room) End(requester uuid.UUID, now time.Time) error {
	if requester != r.hostID {
		return fmt.Errorf("%w: only the host can end the round", ErrForbidden)
	}
	return r.ForceEnd(0, history.ReasonHostEnded, now)
}

// Rematch reopens a finished room for a new round with the same roster.
func (r *Room) Rematch(requester uuid.UUID, now time.Time) error {
	if requester != r.hostID {
		return fmt.Errorf("%w: only the host can start a rematch", ErrForbidden)
	}
	if r.status != StatusFinished {
		return fmt.Errorf("%w: room is %s", ErrInvalidState, r.status)
	}
	r.resetRound()
	r.status = StatusWaiting
	r.emit(events.RoundReset, RoundResetPayload{Round: r.round}, now)
	return nil
}

// Delete closes the room, finishing a live round first.
func (r *Room) Delete(requester uuid.UUID, now time.Time) error {
	if len(r.participants) > 0 && requester != r.hostID {
		return fmt.Errorf("%w: only the host can delete the room", ErrForbidden)
	}
	if r.status == StatusInProgress {
		r.finish(history.ReasonDeleted, true, now)
	} else {
		r.results = append(r.results, r.closingRecord(history.ReasonDeleted, now))
	}
	r.close(history.ReasonDeleted, now)
	return nil
}

func (r *Room) close(reason string, now time.Time) {
	r.closed = true
	r.emit(events.RoomClosed, RoomClosedPayload{Reason: reason}, now)
}

func (r *Room) finish(reason string, forced bool, now time.Time) {
	r.status = StatusFinished
	r.endedAt = now
	r.endReason = reason
	r.winnerID, r.hasWinner = r.policy.Winner(r.roundState(forced))

	payload := RoundEndedPayload{
		Round:   r.round,
		Reason:  reason,
		EndedAt: now,
		Results: r.committed(false),
	}
	if r.hasWinner {
		id := r.winnerID
		payload.WinnerID = &id
		payload.WinnerName = r.nameOf(id)
	}
	r.emit(events.RoundEnded, payload, now)
	r.results = append(r.results, r.record())
}

func (r *Room) roundState(forced bool) scoring.Round {
	entries := make([]scoring.Entry, 0, len(r.order))
	for _, id := range r.order {
		s := r.submissions[id]
		entries = append(entries, scoring.Entry{
			UserID:      id,
			IsCorrect:   s.IsCorrect,
			CodeLength:  s.CodeLength,
			SubmittedAt: s.SubmittedAt,
		})
	}
	return scoring.Round{
		Expected: r.expected,
		Entries:  entries,
		Departed: r.departed,
		Forced:   forced,
	}
}

// committed lists the round's submissions by submission time.
func (r *Room) committed(withCode bool) []Submission {
	out := make([]Submission, 0, len(r.order))
	for _, id := range r.order {
		s := r.submissions[id]
		if !withCode {
			s.Code = ""
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (r *Room) record() history.Record {
	rec := history.Record{
		ID:         uuid.New(),
		Kind:       history.KindRound,
		RoomID:     r.id,
		Round:      r.round,
		JoinCode:   r.joinCode,
		HostID:     r.hostID,
		Mode:       string(r.mode),
		Difficulty: r.difficulty,
		Tier:       r.tier,
		Reason:     r.endReason,
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
	}
	if r.question != nil {
		rec.QuestionID = r.question.ID
		rec.QuestionTitle = r.question.Title
	}
	if r.hasWinner {
		id := r.winnerID
		rec.WinnerID = &id
		rec.WinnerName = r.nameOf(id)
	}
	for _, p := range r.participants {
		entry := history.Participant{UserID: p.UserID, DisplayName: p.DisplayName}
		if s, ok := r.submissions[p.UserID]; ok {
			entry.Submitted = true
			entry.IsCorrect = s.IsCorrect
			entry.Disqualified = s.Disqualified
			entry.Score = s.Score
			entry.ExecutionTimeMs = s.ExecutionTimeMs
			entry.CodeLength = s.CodeLength
			entry.Language = s.Language
		}
		rec.Participants = append(rec.Participants, entry)
	}
	if detail, err := json.Marshal(r.Snapshot()); err == nil {
		rec.Detail = detail
	}
	return rec
}

// closingRecord keeps the roster of a room that closes with no round in play.
func (r *Room) closingRecord(reason string, now time.Time) history.Record {
	rec := history.Record{
		ID:         uuid.New(),
		Kind:       history.KindClosing,
		RoomID:     r.id,
		Round:      r.round,
		JoinCode:   r.joinCode,
		HostID:     r.hostID,
		Mode:       string(r.mode),
		Difficulty: r.difficulty,
		Tier:       r.tier,
		Reason:     reason,
		StartedAt:  r.createdAt,
		EndedAt:    now,
	}
	for _, p := range r.participants {
		rec.Participants = append(rec.Participants, history.Participant{UserID: p.UserID, DisplayName: p.DisplayName})
	}
	if detail, err := json.Marshal(r.Snapshot()); err == nil {
		rec.Detail = detail
	}
	return rec
}

// lateRecord is the audit trail of a submission committed after its round settled.
func (r *Room) lateRecord(t ticket, sub Submission, now time.Time) history.Record {
	rec := history.Record{
		ID:            uuid.New(),
		Kind:          history.KindLate,
		RoomID:        r.id,
		Round:         t.round,
		JoinCode:      r.joinCode,
		HostID:        r.hostID,
		Mode:          string(r.mode),
		Difficulty:    r.difficulty,
		Tier:          r.tier,
		QuestionID:    t.questionID,
		QuestionTitle: t.questionTitle,
		Reason:        history.ReasonLate,
		StartedAt:     t.submittedAt,
		EndedAt:       now,
		Participants: []history.Participant{{
			UserID:          sub.UserID,
			DisplayName:     sub.DisplayName,
			Submitted:       true,
			IsCorrect:       sub.IsCorrect,
			Score:           sub.Score,
			ExecutionTimeMs: sub.ExecutionTimeMs,
			CodeLength:      sub.CodeLength,
			Language:        sub.Language,
		}},
	}
	if detail, err := json.Marshal(sub); err == nil {
		rec.Detail = detail
	}
	return rec
}

// Snapshot copies the room state.
func (r *Room) Snapshot() Snapshot {
	s := Snapshot{
		ID:           r.id,
		JoinCode:     r.joinCode,
		Name:         r.name,
		HostID:       r.hostID,
		Status:       r.status,
		Mode:         r.mode,
		MaxPlayers:   r.maxPlayers,
		Participants: append([]Participant(nil), r.participants...),
		Round:        r.round,
		Difficulty:   r.difficulty,
		Tier:         r.tier,
		Submissions:  r.committed(true),
		EndReason:    r.endReason,
		CreatedAt:    r.createdAt,
		Closed:       r.closed,
		Seq:          r.seq,
	}
	if r.question != nil {
		q := *r.question
		s.Question = &q
	}
	if !r.startedAt.IsZero() {
		started, ends := r.startedAt, r.deadline()
		s.StartedAt = &started
		s.EndsAt = &ends
		s.DurationSeconds = int(r.duration / time.Second)
	}
	for id := range r.pending {
		s.Pending = append(s.Pending, id)
	}
	sort.Slice(s.Pending, func(i, j int) bool { return s.Pending[i].String() < s.Pending[j].String() })
	if len(r.late) > 0 {
		s.LateSubmissions = append([]Submission(nil), r.late...)
	}
	if r.hasWinner {
		id := r.winnerID
		s.WinnerID = &id
		s.WinnerName = r.nameOf(id)
	}
	if !r.endedAt.IsZero() {
		ended := r.endedAt
		s.EndedAt = &ended
	}
	return s
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects the completion and winner rules of a round.
type Mode string

const (
	ModeNormal    Mode = "normal"
	ModeShortest  Mode = "shortest"
	ModeDebugging Mode = "debugging"
	ModeEscape    Mode = "escape"
)

// Entry is one committed submission as seen by a policy.
type Entry struct {
	UserID      uuid.UUID
	IsCorrect   bool
	CodeLength  int
	SubmittedAt time.Time
}

// Round is the slice of room state a policy decides on. Entries are in
// commit order; Departed marks members of Expected that left mid-round.
type Round struct {
	Expected []uuid.UUID
	Entries  []Entry
	Departed map[uuid.UUID]bool
	Forced   bool
}

// Policy decides completion and the winner for one mode.
type Policy interface {
	Mode() Mode
	Complete(r Round) bool
	Winner(r Round) (uuid.UUID, bool)
}

var policies = map[Mode]Policy{
	ModeNormal:    earliestCorrect{mode: ModeNormal},
	ModeDebugging: earliestCorrect{mode: ModeDebugging},
	ModeShortest:  shortestCorrect{},
	ModeEscape:    escape{},
}

// For returns the policy registered for mode.
func For(mode Mode) (Policy, error) {
	p, ok := policies[mode]
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	return p, nil
}

// ParseMode accepts a mode name in any case. Empty means normal.
func ParseMode(s string) (Mode, error) {
	if strings.TrimSpace(s) == "" {
		return ModeNormal, nil
	}
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := policies[m]; !ok {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Modes lists the supported modes in a stable order.
func Modes() []Mode {
	out := make([]Mode, 0, len(policies))
	for m := range policies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// allSettled reports whether every expected member submitted or left.
func allSettled(r Round) bool {
	submitted := make(map[uuid.UUID]bool, len(r.Entries))
	for _, e := range r.Entries {
		submitted[e.UserID] = true
	}
	for _, id := range r.Expected {
		if !submitted[id] && !r.Departed[id] {
			return false
		}
	}
	return true
}

// pick returns the best correct entry under less. Commit order breaks exact ties.
func pick(entries []Entry, less func(a, b Entry) bool) (uuid.UUID, bool) {
	var best *Entry
	for i := range entries {
		e := &entries[i]
		if !e.IsCorrect {
			continue
		}
		if best == nil || less(*e, *best) {
			best = e
		}
	}
	if best == nil {
		return uuid.Nil, false
	}
	return best.UserID, true
}

func earlier(a, b Entry) bool {
	return a.SubmittedAt.Before(b.SubmittedAt)
}

// earliestCorrect serves Normal and Debugging rounds.
type earliestCorrect struct {
	mode Mode
}

func (p earliestCorrect) Mode() Mode            { return p.mode }
func (p earliestCorrect) Complete(r Round) bool { return allSettled(r) }
func (p earliestCorrect) Winner(r Round) (uuid.UUID, bool) {
	return pick(r.Entries, earlier)
}

type shortestCorrect struct{}

func (shortestCorrect) Mode() Mode            { return ModeShortest }
func (shortestCorrect) Complete(r Round) bool { return allSettled(r) }
func (shortestCorrect) Winner(r Round) (uuid.UUID, bool) {
	return pick(r.Entries, func(a, b Entry) bool {
		if a.CodeLength != b.CodeLength {
			return a.CodeLength < b.CodeLength
		}
		return earlier(a, b)
	})
}

// escape only names a winner when every stage was completed before the clock ran out.
type escape struct{}

func (escape) Mode() Mode            { return ModeEscape }
func (escape) Complete(r Round) bool { return allSettled(r) }
func (escape) Winner(r Round) (uuid.UUID, bool) {
	if r.Forced {
		return uuid.Nil, false
	}
	return pick(r.Entries, earlier)
}

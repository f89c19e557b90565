package services

import (
	"sync"

	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
)

// MatchEvent is an input to the match state machine.
type MatchEvent string

const (
	EventLike    MatchEvent = "like"
	EventPass    MatchEvent = "pass"
	EventUnmatch MatchEvent = "unmatch"
	EventExpire  MatchEvent = "expire"
)

// matchTransitions is the legal-transition table. Idempotent no-ops
// (re-liking a mutual match, re-passing a passed one) are resolved by the
// caller before consulting the table; everything absent here is illegal.
var matchTransitions = map[database.MatchStatus]map[MatchEvent]database.MatchStatus{
	database.MatchStatusPending: {
		EventLike:   database.MatchStatusMutual,
		EventPass:   database.MatchStatusPassed,
		EventExpire: database.MatchStatusExpired,
	},
	database.MatchStatusMutual: {
		EventUnmatch: database.MatchStatusUnmatched,
	},
}

// NextStatus applies event to the current status, returning the resulting
// status or an invalid-transition error.
func NextStatus(from database.MatchStatus, event MatchEvent) (database.MatchStatus, error) {
	if targets, ok := matchTransitions[from]; ok {
		if to, ok := targets[event]; ok {
			return to, nil
		}
	}
	return "", errors.NewInvalidTransitionError(string(from), string(event))
}

// CanonicalPair orders two user identifiers deterministically so that the
// unordered pair (A,B) and (B,A) key the same match row.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// pairKey builds the lock key for a canonical pair.
func pairKey(lo, hi string) string {
	return lo + ":" + hi
}

// pairLocks serializes transitions per canonical pair within this process.
// Entries are reference counted and removed when the last holder releases,
// so the registry does not grow with the total number of pairs ever seen.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLockEntry
}

type pairLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*pairLockEntry)}
}

// Lock acquires the lock for key and returns the release function.
func (p *pairLocks) Lock(key string) func() {
	p.mu.Lock()
	entry, ok := p.locks[key]
	if !ok {
		entry = &pairLockEntry{}
		p.locks[key] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		p.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

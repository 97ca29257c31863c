package retry

// ledger.go contains the retry ledger: the ordered attempt history of every
// test in a run and the dispositions resolved from it.

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

type ledgerEntry struct {
	identity    TestIdentity
	attempts    []Attempt
	disposition Disposition
}

// Ledger owns all attempt data of a run. Attempts of one identity are never
// reordered or dropped. It is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	entries   map[ID]*ledgerEntry
	finalized bool
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ID]*ledgerEntry)}
}

// RecordAttempt appends an attempt. The ordinal must be exactly one more
// than the number of attempts already recorded for the identity; anything
// else, including redelivery of an ordinal, is a protocol error.
func (l *Ledger) RecordAttempt(identity TestIdentity, attempt Attempt) error {
	id := identity.ID()
	if !attempt.Result.valid() {
		return protocolErrorf(id, attempt.Ordinal, "unknown result %q", attempt.Result)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.finalized {
		return protocolErrorf(id, attempt.Ordinal, "attempt recorded after finalize")
	}

	entry, ok := l.entries[id]
	if !ok {
		entry = &ledgerEntry{identity: identity}
	}
	next := len(entry.attempts) + 1
	switch {
	case attempt.Ordinal < next:
		return protocolErrorf(id, attempt.Ordinal, "duplicate attempt")
	case attempt.Ordinal > next:
		return protocolErrorf(id, attempt.Ordinal, "expected attempt %d", next)
	}

	entry.attempts = append(entry.attempts, attempt)
	if len(identity.MethodTags) > 0 || len(identity.ClassTags) > 0 {
		entry.identity = identity
	}
	l.entries[id] = entry
	return nil
}

// AttemptCount returns the number of attempts recorded for id.
func (l *Ledger) AttemptCount(id ID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if entry, ok := l.entries[id]; ok {
		return len(entry.attempts)
	}
	return 0
}

// LastOutcome returns the most recent attempt of id.
func (l *Ledger) LastOutcome(id ID) (Attempt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[id]
	if !ok || len(entry.attempts) == 0 {
		return Attempt{}, false
	}
	return entry.attempts[len(entry.attempts)-1], true
}

// Attempts returns a copy of the attempt history of id in execution order.
func (l *Ledger) Attempts(id ID) []Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if entry, ok := l.entries[id]; ok {
		return slices.Clone(entry.attempts)
	}
	return nil
}

// AllIdentities returns every recorded identity sorted by class and method.
func (l *Ledger) AllIdentities() []TestIdentity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TestIdentity, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.identity)
	}
	slices.SortFunc(out, func(a, b TestIdentity) int {
		return cmp.Or(cmp.Compare(a.Class, b.Class), cmp.Compare(a.Method, b.Method))
	})
	return out
}

// Finalize resolves the disposition of every identity. It may only be
// called once; afterwards no attempt can be recorded.
func (l *Ledger) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return fmt.Errorf("%w: ledger already finalized", ErrState)
	}
	for _, entry := range l.entries {
		entry.disposition = resolveDisposition(entry.attempts)
	}
	l.finalized = true
	return nil
}

// Finalized reports whether Finalize has been called.
func (l *Ledger) Finalized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.finalized
}

// Disposition returns the resolved disposition of id. It fails with
// ErrState before Finalize.
func (l *Ledger) Disposition(id ID) (Disposition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.finalized {
		return "", fmt.Errorf("%w: disposition of %s requested before finalize", ErrState, id)
	}
	entry, ok := l.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: unknown test %s", ErrState, id)
	}
	return entry.disposition, nil
}

func resolveDisposition(attempts []Attempt) Disposition {
	if len(attempts) == 0 {
		return DispositionSkipped
	}
	failedBefore := false
	for _, a := range attempts[:len(attempts)-1] {
		if a.Result == ResultFailed {
			failedBefore = true
			break
		}
	}
	switch attempts[len(attempts)-1].Result {
	case ResultPassed:
		if failedBefore {
			return DispositionFlaky
		}
		return DispositionPassed
	case ResultSkipped:
		// a retry that was skipped does not clear an earlier failure
		if failedBefore {
			return DispositionFailed
		}
		return DispositionSkipped
	default:
		return DispositionFailed
	}
}

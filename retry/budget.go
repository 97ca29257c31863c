package retry

import (
	"sync"
)

// FailureBudget counts distinct failing tests across a run and trips once
// the count reaches the configured ceiling. A tripped budget never resets.
type FailureBudget struct {
	mu       sync.Mutex
	max      int
	observed map[ID]struct{}
	tripped  bool
}

// NewFailureBudget returns a budget tripping at maxFailures distinct
// failures. Zero means unlimited.
func NewFailureBudget(maxFailures int) *FailureBudget {
	if maxFailures < 0 {
		maxFailures = 0
	}
	return &FailureBudget{
		max:      maxFailures,
		observed: make(map[ID]struct{}),
	}
}

// ObserveFirstFailure counts the first failure of id. It returns whether
// the failure was admitted, i.e. the budget was not yet tripped when it was
// counted. The check and the increment happen under one lock so two
// concurrent failures can never both be admitted past the ceiling.
// Repeated calls for the same id do not count again and report the
// current trip state.
func (b *FailureBudget) ObserveFirstFailure(id ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.observed[id]; seen {
		return !b.tripped
	}
	admitted := !b.tripped
	b.observed[id] = struct{}{}
	if b.max > 0 && len(b.observed) >= b.max {
		b.tripped = true
	}
	return admitted
}

// IsTripped reports whether the ceiling has been reached.
func (b *FailureBudget) IsTripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Failures returns the number of distinct failed tests observed so far.
func (b *FailureBudget) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observed)
}

package retry

// orchestrator.go contains the retry orchestrator: it consumes test events
// from an execution engine, drives one state machine per test and issues
// retry requests back to the engine.

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Engine is the execution engine retries are dispatched to.
//
// RequestRetry must not block: it schedules a re-execution of exactly the
// given test, which later delivers an outcome with the next ordinal.
type Engine interface {
	RequestRetry(id TestIdentity)
}

// State is the state of a single test's state machine.
type State int

const (
	StateAwaitingResult State = iota
	StateRetryScheduled
	StateTerminal
	StateTerminalFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingResult:
		return "AWAITING_RESULT"
	case StateRetryScheduled:
		return "RETRY_SCHEDULED"
	case StateTerminal:
		return "TERMINAL"
	case StateTerminalFailed:
		return "TERMINAL_FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) terminal() bool {
	return s == StateTerminal || s == StateTerminalFailed
}

type machine struct {
	mu       sync.Mutex
	identity TestIdentity
	state    State
	// first failure already counted against the failure budget
	failureObserved bool
}

// Orchestrator coordinates retries for one run. Events for different tests
// may be delivered concurrently; events for the same test are serialized.
type Orchestrator struct {
	logger   zerolog.Logger
	policy   Policy
	filter   *FilterEvaluator
	ledger   *Ledger
	budget   *FailureBudget
	engine   Engine
	observer Observer

	machines sync.Map // ID -> *machine

	// Event handlers hold gate for reading; Finish takes it exclusively so it
	// only proceeds once every in-flight handler has returned.
	gate     sync.RWMutex
	finished bool

	fatalMu sync.Mutex
	fatal   error

	tripReported atomic.Bool
	retries      atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for orchestrator decisions.
func WithObserver(o Observer) Option {
	return func(orch *Orchestrator) {
		if o != nil {
			orch.observer = o
		}
	}
}

// WithLedger makes the orchestrator record into the given ledger.
func WithLedger(l *Ledger) Option {
	return func(orch *Orchestrator) {
		if l != nil {
			orch.ledger = l
		}
	}
}

// NewOrchestrator validates policy and returns an orchestrator dispatching
// retries to engine. The failure budget is shared state owned by the caller;
// nil creates one from policy.MaxFailures.
func NewOrchestrator(logger zerolog.Logger, policy Policy, engine Engine, budget *FailureBudget, opts ...Option) (*Orchestrator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	filter, err := NewFilterEvaluator(policy.Filter)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: no execution engine", ErrConfig)
	}
	if budget == nil {
		budget = NewFailureBudget(policy.MaxFailures)
	}

	o := &Orchestrator{
		logger:   logger,
		policy:   policy,
		filter:   filter,
		ledger:   NewLedger(),
		budget:   budget,
		engine:   engine,
		observer: NoopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Ledger returns the ledger the orchestrator records into.
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// RetriesRequested returns the number of retry commands issued so far.
func (o *Orchestrator) RetriesRequested() int {
	return int(o.retries.Load())
}

// State returns the current state of id.
func (o *Orchestrator) State(id ID) (State, bool) {
	v, ok := o.machines.Load(id)
	if !ok {
		return 0, false
	}
	m := v.(*machine)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, true
}

// OnTestStarted registers the start of an execution of identity.
func (o *Orchestrator) OnTestStarted(identity TestIdentity) error {
	o.gate.RLock()
	defer o.gate.RUnlock()

	if err := o.checkOpen(identity.ID(), 0); err != nil {
		return err
	}

	v, loaded := o.machines.LoadOrStore(identity.ID(), &machine{identity: identity, state: StateAwaitingResult})
	if !loaded {
		o.logger.Debug().Str("test", identity.String()).Msg("Test started")
		return nil
	}

	m := v.(*machine)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateRetryScheduled:
		m.state = StateAwaitingResult
		o.logger.Debug().Str("test", identity.String()).Msg("Retry started")
		return nil
	case StateAwaitingResult:
		return o.latch(protocolErrorf(identity.ID(), 0, "started again before an outcome was delivered"))
	default:
		return o.latch(protocolErrorf(identity.ID(), 0, "started after reaching %s without a retry request", m.state))
	}
}

// OnTestOutcome records the outcome of attempt ordinal of identity and
// decides whether the test is retried.
func (o *Orchestrator) OnTestOutcome(identity TestIdentity, ordinal int, result Result, detail string) error {
	retryID, err := o.handleOutcome(identity, ordinal, result, detail)
	if err != nil {
		return err
	}
	if retryID != nil {
		// Dispatch happens outside all locks; the engine is fire-and-forget.
		o.engine.RequestRetry(*retryID)
	}
	return nil
}

func (o *Orchestrator) handleOutcome(identity TestIdentity, ordinal int, result Result, detail string) (*TestIdentity, error) {
	o.gate.RLock()
	defer o.gate.RUnlock()

	id := identity.ID()
	if err := o.checkOpen(id, ordinal); err != nil {
		return nil, err
	}

	v, ok := o.machines.Load(id)
	if !ok {
		if ordinal != 1 {
			return nil, o.latch(protocolErrorf(id, ordinal, "outcome for unknown test"))
		}
		v, _ = o.machines.LoadOrStore(id, &machine{identity: identity, state: StateAwaitingResult})
	}

	m := v.(*machine)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.terminal() {
		return nil, o.latch(protocolErrorf(id, ordinal, "outcome for test in state %s", m.state))
	}

	attempt := Attempt{Ordinal: ordinal, Result: result, Detail: detail}
	if err := o.ledger.RecordAttempt(identity, attempt); err != nil {
		return nil, o.latch(err)
	}
	o.observer.OnAttempt(identity, attempt)

	if result != ResultFailed {
		m.state = StateTerminal
		logEvent := o.logger.Debug()
		if ordinal > 1 && result == ResultPassed {
			logEvent = o.logger.Info()
		}
		logEvent.
			Str("test", identity.String()).
			Int("attempt", ordinal).
			Str("result", string(result)).
			Msg("Test finished")
		return nil, nil
	}

	reason := o.decideFailure(m, identity, ordinal)
	if reason != "" {
		m.state = StateTerminalFailed
		o.logger.Info().
			Str("test", identity.String()).
			Int("attempt", ordinal).
			Str("reason", reason).
			Msg("Test failed, not retrying")
		return nil, nil
	}

	m.state = StateRetryScheduled
	o.retries.Add(1)
	o.observer.OnRetryRequested(identity, ordinal+1)
	o.logger.Info().
		Str("test", identity.String()).
		Int("attempt", ordinal).
		Int("next_attempt", ordinal+1).
		Msg("Test failed, retrying")

	retryID := m.identity
	return &retryID, nil
}

// decideFailure returns why a failed test is not retried, or "" when it
// should be. Called with m.mu held.
func (o *Orchestrator) decideFailure(m *machine, identity TestIdentity, ordinal int) string {
	var admitted bool
	if !m.failureObserved {
		m.failureObserved = true
		admitted = o.budget.ObserveFirstFailure(identity.ID())
	} else {
		admitted = !o.budget.IsTripped()
	}
	if o.budget.IsTripped() && o.tripReported.CompareAndSwap(false, true) {
		failures := o.budget.Failures()
		o.logger.Warn().
			Int("failures", failures).
			Int("max_failures", o.policy.MaxFailures).
			Msg("Failure budget exhausted, no further retries will be issued")
		o.observer.OnBudgetTripped(failures)
	}

	switch {
	case !admitted:
		return "failure budget exhausted"
	case o.ledger.AttemptCount(identity.ID()) > o.policy.MaxRetries:
		if o.policy.MaxRetries == 0 {
			return "retries disabled"
		}
		return "retries exhausted"
	case !o.filter.IsRetryEligible(m.identity):
		return "excluded by filter"
	}
	return ""
}

// Finish ends the run: it waits for in-flight event handlers, finalizes the
// ledger and aggregates the verdict. It fails with ErrUnsettled, leaving the
// run open, while any test still awaits a result.
func (o *Orchestrator) Finish() (*RunVerdict, error) {
	o.gate.Lock()
	defer o.gate.Unlock()

	if o.finished {
		return nil, fmt.Errorf("%w: run already finished", ErrState)
	}
	if err := o.fatalErr(); err != nil {
		o.finished = true
		return nil, err
	}

	var unsettled []string
	o.machines.Range(func(_, v any) bool {
		m := v.(*machine)
		m.mu.Lock()
		if !m.state.terminal() {
			unsettled = append(unsettled, fmt.Sprintf("%s (%s)", m.identity, m.state))
		}
		m.mu.Unlock()
		return true
	})
	if len(unsettled) > 0 {
		slices.Sort(unsettled)
		return nil, fmt.Errorf("%w: %s", ErrUnsettled, strings.Join(unsettled, ", "))
	}

	o.finished = true
	if err := o.ledger.Finalize(); err != nil {
		return nil, err
	}
	verdict, err := Aggregate(o.ledger, o.policy)
	if err != nil {
		return nil, err
	}
	verdict.BudgetTripped = o.budget.IsTripped()
	o.observer.OnVerdict(verdict)

	o.logger.Debug().
		Str("verdict", string(verdict.Verdict)).
		Int("tests", len(verdict.Tests)).
		Int("retries", o.RetriesRequested()).
		Msg("Run finished")
	return verdict, nil
}

// Err returns the first protocol violation seen, if any.
func (o *Orchestrator) Err() error {
	return o.fatalErr()
}

// checkOpen is called with gate held for reading.
func (o *Orchestrator) checkOpen(id ID, ordinal int) error {
	if o.finished {
		return o.latch(protocolErrorf(id, ordinal, "event received after the run finished"))
	}
	return o.fatalErr()
}

// latch stores the first fatal error and returns err.
func (o *Orchestrator) latch(err error) error {
	o.fatalMu.Lock()
	defer o.fatalMu.Unlock()
	if o.fatal == nil {
		o.fatal = err
		o.logger.Error().Err(err).Msg("Aborting retries")
	}
	return err
}

func (o *Orchestrator) fatalErr() error {
	o.fatalMu.Lock()
	defer o.fatalMu.Unlock()
	return o.fatal
}

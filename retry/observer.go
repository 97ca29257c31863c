package retry

// Observer receives notifications about orchestrator decisions. Methods are
// called from event-handling goroutines and must not block.
type Observer interface {
	OnAttempt(id TestIdentity, attempt Attempt)
	OnRetryRequested(id TestIdentity, nextOrdinal int)
	OnBudgetTripped(failures int)
	OnVerdict(verdict *RunVerdict)
}

// NoopObserver ignores every notification.
type NoopObserver struct{}

func (NoopObserver) OnAttempt(TestIdentity, Attempt)     {}
func (NoopObserver) OnRetryRequested(TestIdentity, int) {}
func (NoopObserver) OnBudgetTripped(int)                {}
func (NoopObserver) OnVerdict(*RunVerdict)              {}

// MultiObserver fans out notifications to several observers.
type MultiObserver []Observer

func (m MultiObserver) OnAttempt(id TestIdentity, attempt Attempt) {
	for _, o := range m {
		o.OnAttempt(id, attempt)
	}
}

func (m MultiObserver) OnRetryRequested(id TestIdentity, nextOrdinal int) {
	for _, o := range m {
		o.OnRetryRequested(id, nextOrdinal)
	}
}

func (m MultiObserver) OnBudgetTripped(failures int) {
	for _, o := range m {
		o.OnBudgetTripped(failures)
	}
}

func (m MultiObserver) OnVerdict(verdict *RunVerdict) {
	for _, o := range m {
		o.OnVerdict(verdict)
	}
}

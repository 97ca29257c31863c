package retry

// verdict.go contains the result aggregator turning a finalized ledger into
// the verdict of a run.

import (
	"fmt"
)

// Verdict is the overall outcome of a run.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// TestVerdict is the resolved outcome of one test with its full history.
type TestVerdict struct {
	Identity    TestIdentity `json:"identity"`
	Disposition Disposition  `json:"disposition"`
	// Reported is the outcome exposed to downstream reporting. A flaky test
	// is reported as passed unless the policy fails on passed-after-retry.
	Reported Result    `json:"reported"`
	Attempts []Attempt `json:"attempts"`
}

// RunVerdict is the final output of a run.
type RunVerdict struct {
	Verdict       Verdict       `json:"verdict"`
	Tests         []TestVerdict `json:"tests"`
	BudgetTripped bool          `json:"budget_tripped,omitempty"`
}

// Aggregate computes the run verdict from a finalized ledger.
func Aggregate(ledger *Ledger, policy Policy) (*RunVerdict, error) {
	if !ledger.Finalized() {
		return nil, fmt.Errorf("%w: ledger must be finalized before aggregation", ErrState)
	}

	verdict := &RunVerdict{Verdict: VerdictPass}
	for _, identity := range ledger.AllIdentities() {
		disposition, err := ledger.Disposition(identity.ID())
		if err != nil {
			return nil, err
		}

		tv := TestVerdict{
			Identity:    identity,
			Disposition: disposition,
			Reported:    reportedResult(disposition, policy),
			Attempts:    ledger.Attempts(identity.ID()),
		}
		if tv.Reported == ResultFailed {
			verdict.Verdict = VerdictFail
		}
		verdict.Tests = append(verdict.Tests, tv)
	}
	return verdict, nil
}

func reportedResult(d Disposition, policy Policy) Result {
	switch d {
	case DispositionPassed:
		return ResultPassed
	case DispositionFlaky:
		if policy.FailOnPassedAfterRetry {
			return ResultFailed
		}
		return ResultPassed
	case DispositionSkipped:
		return ResultSkipped
	default:
		return ResultFailed
	}
}

// Passed reports whether the run verdict is PASS.
func (v *RunVerdict) Passed() bool {
	return v.Verdict == VerdictPass
}

// Count returns the number of tests resolved to d.
func (v *RunVerdict) Count(d Disposition) int {
	n := 0
	for _, t := range v.Tests {
		if t.Disposition == d {
			n++
		}
	}
	return n
}

// Select returns the tests resolved to any of the given dispositions.
func (v *RunVerdict) Select(dispositions ...Disposition) []TestVerdict {
	var out []TestVerdict
	for _, t := range v.Tests {
		for _, d := range dispositions {
			if t.Disposition == d {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Retries returns the number of attempts beyond the first across all tests.
func (v *RunVerdict) Retries() int {
	n := 0
	for _, t := range v.Tests {
		if len(t.Attempts) > 1 {
			n += len(t.Attempts) - 1
		}
	}
	return n
}

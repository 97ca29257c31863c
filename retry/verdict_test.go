package retry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func finalizedLedger(t *testing.T, histories map[string][]Result) *Ledger {
	t.Helper()
	l := NewLedger()
	for method, results := range histories {
		id := NewTestIdentity("pkg", method, nil, nil)
		for i, r := range results {
			require.NoError(t, l.RecordAttempt(id, Attempt{Ordinal: i + 1, Result: r}))
		}
	}
	require.NoError(t, l.Finalize())
	return l
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		histories map[string][]Result
		policy    Policy
		want      Verdict
	}{
		{
			name:      "all passed",
			histories: map[string][]Result{"TestA": {ResultPassed}, "TestB": {ResultSkipped}},
			want:      VerdictPass,
		},
		{
			name:      "flaky tolerated",
			histories: map[string][]Result{"TestA": {ResultFailed, ResultPassed}},
			want:      VerdictPass,
		},
		{
			name:      "flaky fails the run when configured",
			histories: map[string][]Result{"TestA": {ResultFailed, ResultPassed}},
			policy:    Policy{FailOnPassedAfterRetry: true},
			want:      VerdictFail,
		},
		{
			name:      "genuine failure",
			histories: map[string][]Result{"TestA": {ResultPassed}, "TestB": {ResultFailed, ResultFailed}},
			want:      VerdictFail,
		},
		{
			name: "empty run",
			want: VerdictPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Aggregate(finalizedLedger(t, tt.histories), tt.policy)
			require.NoError(t, err)
			require.Equal(t, tt.want, v.Verdict)
			require.Len(t, v.Tests, len(tt.histories))
		})
	}
}

func TestAggregate_KeepsHistoryAndCounts(t *testing.T) {
	l := finalizedLedger(t, map[string][]Result{
		"TestFlaky":  {ResultFailed, ResultFailed, ResultPassed},
		"TestBroken": {ResultFailed, ResultFailed, ResultFailed},
		"TestOK":     {ResultPassed},
	})
	v, err := Aggregate(l, Policy{MaxRetries: 2})
	require.NoError(t, err)

	require.Equal(t, 1, v.Count(DispositionFlaky))
	require.Equal(t, 1, v.Count(DispositionFailed))
	require.Equal(t, 1, v.Count(DispositionPassed))
	require.Equal(t, 4, v.Retries())

	selected := v.Select(DispositionFailed, DispositionFlaky)
	require.Len(t, selected, 2)
	require.Equal(t, "TestBroken", selected[0].Identity.Method)
	require.Len(t, selected[0].Attempts, 3)
	require.Equal(t, "TestFlaky", selected[1].Identity.Method)
	require.Equal(t, ResultPassed, selected[1].Reported)
}

func TestAggregate_RequiresFinalizedLedger(t *testing.T) {
	_, err := Aggregate(NewLedger(), Policy{})
	require.ErrorIs(t, err, ErrState)
}

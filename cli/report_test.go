package cli

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/gobwas/glob"
	"github.com/perfgo/testretry/retry"
	"github.com/stretchr/testify/require"
)

func testVerdict() *retry.RunVerdict {
	id := func(method string, tags ...string) retry.TestIdentity {
		return retry.NewTestIdentity("example.com/store", method, tags, nil)
	}
	return &retry.RunVerdict{
		Verdict:       retry.VerdictFail,
		BudgetTripped: true,
		Tests: []retry.TestVerdict{
			{
				Identity:    id("TestOK"),
				Disposition: retry.DispositionPassed,
				Reported:    retry.ResultPassed,
				Attempts:    []retry.Attempt{{Ordinal: 1, Result: retry.ResultPassed}},
			},
			{
				Identity:    id("TestFlaky", "Network"),
				Disposition: retry.DispositionFlaky,
				Reported:    retry.ResultPassed,
				Attempts: []retry.Attempt{
					{Ordinal: 1, Result: retry.ResultFailed, Detail: "timeout"},
					{Ordinal: 2, Result: retry.ResultPassed},
				},
			},
			{
				Identity:    id("TestBroken"),
				Disposition: retry.DispositionFailed,
				Reported:    retry.ResultFailed,
				Attempts: []retry.Attempt{
					{Ordinal: 1, Result: retry.ResultFailed, Detail: "    store_test.go:12: first\n"},
					{Ordinal: 2, Result: retry.ResultFailed, Detail: "    store_test.go:12: want 1, got 2\n"},
				},
			},
		},
	}
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	printReport(&out, testVerdict(), reportOptions{
		Reproduce: func(id retry.TestIdentity) string { return "rerun " + id.Method },
	})
	report := out.String()

	require.Contains(t, report, "FLAKY    example.com/store.TestFlaky  FAILED → PASSED")
	require.Contains(t, report, "tags: Network")
	require.Contains(t, report, "FAILED   example.com/store.TestBroken  FAILED → FAILED")
	require.Contains(t, report, "| store_test.go:12: want 1, got 2")
	require.NotContains(t, report, "first")
	require.Contains(t, report, "reproduce: rerun TestBroken")
	require.Contains(t, report, "reproduce: rerun TestFlaky")
	require.NotContains(t, report, "TestOK")
	require.Contains(t, report, "3 tests: 1 passed, 1 flaky, 1 failed, 0 skipped, 2 retries")
	require.Contains(t, report, "Failure budget exhausted")
	require.Contains(t, report, "FAIL\n")
}

func TestPrintReport_Match(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	printReport(&out, testVerdict(), reportOptions{
		Match: glob.MustCompile("*.TestOK"),
		All:   true,
	})
	report := out.String()

	require.Contains(t, report, "PASSED   example.com/store.TestOK  PASSED")
	require.NotContains(t, report, "TestFlaky")
	require.NotContains(t, report, "reproduce")
}

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/perfgo/testretry/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const helperEnv = "TESTRETRY_HELPER_PROCESS"

// TestHelperProcess is not a real test: it stands in for a test binary
// running under test2json, replaying a script selected by the environment.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	script := os.Getenv("TESTRETRY_HELPER_SCRIPT")
	test := os.Getenv("TESTRETRY_HELPER_TEST")

	emit := func(action, name, output string) {
		line, _ := json.Marshal(Event{Action: action, Package: "example.com/pkg", Test: name, Output: output})
		fmt.Println(string(line))
	}

	switch script + "/" + test {
	case "flaky/":
		emit(ActionStart, "", "")
		emit(ActionRun, "TestOK", "")
		emit(ActionPass, "TestOK", "")
		emit(ActionRun, "TestFlaky", "")
		emit(ActionOutput, "TestFlaky", "    flaky_test.go:10: boom\n")
		emit(ActionFail, "TestFlaky", "")
		emit(ActionRun, "TestSkip", "")
		emit(ActionSkip, "TestSkip", "")
		emit(ActionRun, "TestParent", "")
		emit(ActionRun, "TestParent/child", "")
		emit(ActionOutput, "TestParent/child", "    parent_test.go:20: child broke\n")
		emit(ActionFail, "TestParent/child", "")
		emit(ActionFail, "TestParent", "")
		emit(ActionFail, "", "")
		os.Exit(1)
	case "flaky/TestFlaky":
		emit(ActionRun, "TestFlaky", "")
		emit(ActionPass, "TestFlaky", "")
	case "flaky/TestParent":
		emit(ActionRun, "TestParent", "")
		emit(ActionRun, "TestParent/child", "")
		emit(ActionPass, "TestParent/child", "")
		emit(ActionPass, "TestParent", "")
	case "crash/", "crash/TestCrash":
		if test == "" {
			emit(ActionRun, "TestOK", "")
			emit(ActionPass, "TestOK", "")
		}
		emit(ActionRun, "TestCrash", "")
		emit(ActionOutput, "TestCrash", "panic: runtime error: index out of range\n")
		os.Exit(2)
	case "silent/":
		emit(ActionRun, "TestGone", "")
		emit(ActionFail, "TestGone", "")
		os.Exit(1)
	case "silent/TestGone":
		emit(ActionOutput, "", "testing: warning: no tests to run\n")
	case "broken/":
		fmt.Println("flag provided but not defined: -test.nope")
		os.Exit(2)
	}
	os.Exit(0)
}

func helperCommand(script string) CommandFunc {
	return func(ctx context.Context, opts RunOptions) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperProcess$")
		cmd.Env = append(os.Environ(),
			helperEnv+"=1",
			"TESTRETRY_HELPER_SCRIPT="+script,
			"TESTRETRY_HELPER_TEST="+opts.Test,
		)
		return cmd
	}
}

func runScript(t *testing.T, script string, policy retry.Policy) (*retry.RunVerdict, error, *bytes.Buffer) {
	t.Helper()
	var stdout bytes.Buffer
	r := New(zerolog.Nop(), Config{
		Package:  "example.com/pkg",
		Binary:   "./pkg.test",
		Parallel: 2,
		Stdout:   &stdout,
		Command:  helperCommand(script),
	})
	o, err := retry.NewOrchestrator(zerolog.Nop(), policy, r, nil)
	require.NoError(t, err)

	if err := r.Run(context.Background(), o); err != nil {
		return nil, err, &stdout
	}
	v, err := o.Finish()
	return v, err, &stdout
}

func byMethod(v *retry.RunVerdict) map[string]retry.TestVerdict {
	out := make(map[string]retry.TestVerdict)
	for _, tv := range v.Tests {
		out[tv.Identity.Method] = tv
	}
	return out
}

func TestRunner_RetriesFlakyTests(t *testing.T) {
	v, err, stdout := runScript(t, "flaky", retry.Policy{MaxRetries: 2})
	require.NoError(t, err)
	require.Equal(t, retry.VerdictPass, v.Verdict)

	tests := byMethod(v)
	require.Len(t, tests, 4)
	require.Equal(t, retry.DispositionPassed, tests["TestOK"].Disposition)
	require.Equal(t, retry.DispositionSkipped, tests["TestSkip"].Disposition)
	require.Equal(t, retry.DispositionFlaky, tests["TestFlaky"].Disposition)
	require.Len(t, tests["TestFlaky"].Attempts, 2)
	require.Contains(t, tests["TestFlaky"].Attempts[0].Detail, "boom")

	// subtests fold into their parent
	require.Equal(t, retry.DispositionFlaky, tests["TestParent"].Disposition)
	require.Contains(t, tests["TestParent"].Attempts[0].Detail, "child broke")
	require.Equal(t, "example.com/pkg", tests["TestParent"].Identity.Class)

	require.Contains(t, stdout.String(), "boom")
}

func TestRunner_NoRetriesWhenDisabled(t *testing.T) {
	v, err, _ := runScript(t, "flaky", retry.Policy{})
	require.NoError(t, err)
	require.Equal(t, retry.VerdictFail, v.Verdict)
	require.Equal(t, 0, v.Retries())
}

func TestRunner_CrashCountsAsFailure(t *testing.T) {
	v, err, _ := runScript(t, "crash", retry.Policy{MaxRetries: 1})
	require.NoError(t, err)
	require.Equal(t, retry.VerdictFail, v.Verdict)

	crash := byMethod(v)["TestCrash"]
	require.Equal(t, retry.DispositionFailed, crash.Disposition)
	require.Len(t, crash.Attempts, 2)
	require.Contains(t, crash.Attempts[0].Detail, "did not report a result (exit code 2)")
	require.Contains(t, crash.Attempts[0].Detail, "index out of range")
}

func TestRunner_RetryWithoutResultSettles(t *testing.T) {
	v, err, _ := runScript(t, "silent", retry.Policy{MaxRetries: 1})
	require.NoError(t, err)
	gone := byMethod(v)["TestGone"]
	require.Equal(t, retry.DispositionFailed, gone.Disposition)
	require.Len(t, gone.Attempts, 2)
	require.Contains(t, gone.Attempts[1].Detail, "did not report a result")
}

func TestRunner_BinaryWithoutEventsIsAnError(t *testing.T) {
	_, err, stdout := runScript(t, "broken", retry.Policy{MaxRetries: 1})
	require.ErrorContains(t, err, "without reporting any test")
	require.Contains(t, stdout.String(), "flag provided but not defined")
}

type failingSink struct{}

func (failingSink) OnTestStarted(retry.TestIdentity) error { return nil }

func (failingSink) OnTestOutcome(id retry.TestIdentity, ordinal int, _ retry.Result, _ string) error {
	return &retry.ProtocolError{ID: id.ID(), Ordinal: ordinal, Reason: "rejected"}
}

func TestRunner_SinkErrorAbortsRun(t *testing.T) {
	r := New(zerolog.Nop(), Config{
		Package: "example.com/pkg",
		Binary:  "./pkg.test",
		Command: helperCommand("flaky"),
	})
	err := r.Run(context.Background(), failingSink{})
	require.ErrorIs(t, err, retry.ErrProtocol)
}

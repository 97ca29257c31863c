package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/perfgo/testretry/retry"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runPolicy parses args with the policy flags and resolves the policy.
func runPolicy(t *testing.T, repoRoot string, args ...string) (retry.Policy, string, error) {
	t.Helper()
	var (
		policy retry.Policy
		source string
		err    error
	)
	app := &cli.App{
		Name:                      AppName,
		DisableSliceFlagSeparator: true,
		Flags:                     policyFlags(),
		Action: func(ctx *cli.Context) error {
			policy, source, err = resolvePolicy(ctx, repoRoot)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{AppName}, args...)))
	return policy, source, err
}

func TestResolvePolicy_Defaults(t *testing.T) {
	policy, source, err := runPolicy(t, t.TempDir())
	require.NoError(t, err)
	require.Empty(t, source)
	require.Equal(t, retry.Policy{}, policy)
	require.False(t, policy.Enabled())
}

func TestResolvePolicy_Flags(t *testing.T) {
	policy, _, err := runPolicy(t, "",
		"--max-retries", "2",
		"--max-failures", "5",
		"--fail-on-passed-after-retry",
		"--include-class", "example.com/{store,cache}",
		"--exclude-annotation", "Flaky",
		"--exclude-annotation", "Slow",
	)
	require.NoError(t, err)
	require.Equal(t, retry.Policy{
		MaxRetries:             2,
		MaxFailures:            5,
		FailOnPassedAfterRetry: true,
		Filter: retry.Filter{
			IncludeClasses:           []string{"example.com/{store,cache}"},
			ExcludeAnnotationClasses: []string{"Flaky", "Slow"},
		},
	}, policy)
}

func TestResolvePolicy_FileThenFlags(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, PolicyFileName), []byte(`
max_retries: 3
max_failures: 10
filter:
  exclude_classes:
    - example.com/legacy*
`), 0644))

	policy, source, err := runPolicy(t, root, "--max-retries", "1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, PolicyFileName), source)
	require.Equal(t, 1, policy.MaxRetries)
	require.Equal(t, 10, policy.MaxFailures)
	require.Equal(t, []string{"example.com/legacy*"}, policy.Filter.ExcludeClasses)
}

func TestResolvePolicy_ExplicitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 4\n"), 0644))

	policy, source, err := runPolicy(t, "", "--config", path)
	require.NoError(t, err)
	require.Equal(t, path, source)
	require.Equal(t, 4, policy.MaxRetries)
}

func TestResolvePolicy_Env(t *testing.T) {
	t.Setenv("TESTRETRY_MAX_RETRIES", "2")
	policy, _, err := runPolicy(t, "")
	require.NoError(t, err)
	require.Equal(t, 2, policy.MaxRetries)
}

func TestResolvePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "negative retries", args: []string{"--max-retries", "-1"}},
		{name: "negative failures", args: []string{"--max-failures", "-3"}},
		{name: "bad class glob", args: []string{"--include-class", "example.com/[abc"}},
		{name: "empty tag", args: []string{"--exclude-annotation", ""}},
		{name: "missing config", args: []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runPolicy(t, "", tt.args...)
			require.ErrorIs(t, err, retry.ErrConfig)
		})
	}
}

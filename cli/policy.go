package cli

// This file contains the assembly of the retry policy from the policy file,
// command line flags and environment variables.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perfgo/testretry/history"
	"github.com/perfgo/testretry/retry"
	"github.com/urfave/cli/v2"
)

// PolicyFileName is picked up from the repository root when --config is not given.
const PolicyFileName = ".testretry.yaml"

func policyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Usage:   "Retry policy file (default: " + PolicyFileName + " in the repository root, if present)",
			EnvVars: []string{"TESTRETRY_CONFIG"},
		},
		&cli.IntFlag{
			Name:    "max-retries",
			Usage:   "Maximum number of retries per failed test, 0 disables retrying",
			EnvVars: []string{"TESTRETRY_MAX_RETRIES"},
		},
		&cli.IntFlag{
			Name:    "max-failures",
			Usage:   "Stop retrying once this many distinct tests failed, 0 means unlimited",
			EnvVars: []string{"TESTRETRY_MAX_FAILURES"},
		},
		&cli.BoolFlag{
			Name:    "fail-on-passed-after-retry",
			Usage:   "Fail the run when a test only passed after being retried",
			EnvVars: []string{"TESTRETRY_FAIL_ON_PASSED_AFTER_RETRY"},
		},
		&cli.StringSliceFlag{
			Name:  "include-class",
			Usage: "Only retry tests whose package import path matches this glob (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-class",
			Usage: "Never retry tests whose package import path matches this glob (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "include-annotation",
			Usage: "Only retry tests carrying this tag (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-annotation",
			Usage: "Never retry tests carrying this tag (repeatable)",
		},
	}
}

// policyFromContext resolves the policy of a test invocation.
func (a *App) policyFromContext(ctx *cli.Context) (retry.Policy, error) {
	repoRoot, err := history.RepoRoot()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Not in a git repository, skipping default policy file")
		repoRoot = ""
	}
	policy, source, err := resolvePolicy(ctx, repoRoot)
	if err != nil {
		return retry.Policy{}, err
	}
	if source != "" {
		a.logger.Debug().Str("path", source).Msg("Loaded retry policy file")
	}
	a.logger.Debug().
		Int("max_retries", policy.MaxRetries).
		Int("max_failures", policy.MaxFailures).
		Bool("fail_on_passed_after_retry", policy.FailOnPassedAfterRetry).
		Msg("Resolved retry policy")
	return policy, nil
}

// resolvePolicy layers flags and environment variables that are set over the
// policy file over the zero policy. It returns the policy file used, if any.
func resolvePolicy(ctx *cli.Context, repoRoot string) (retry.Policy, string, error) {
	var policy retry.Policy

	path := ctx.Path("config")
	if path == "" && repoRoot != "" {
		candidate := filepath.Join(repoRoot, PolicyFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		} else if !errors.Is(err, os.ErrNotExist) {
			return retry.Policy{}, "", fmt.Errorf("failed to stat policy file: %w", err)
		}
	}
	if path != "" {
		var err error
		if policy, err = retry.LoadPolicyFile(path, policy); err != nil {
			return retry.Policy{}, "", err
		}
	}

	if ctx.IsSet("max-retries") {
		policy.MaxRetries = ctx.Int("max-retries")
	}
	if ctx.IsSet("max-failures") {
		policy.MaxFailures = ctx.Int("max-failures")
	}
	if ctx.IsSet("fail-on-passed-after-retry") {
		policy.FailOnPassedAfterRetry = ctx.Bool("fail-on-passed-after-retry")
	}
	if ctx.IsSet("include-class") {
		policy.Filter.IncludeClasses = ctx.StringSlice("include-class")
	}
	if ctx.IsSet("exclude-class") {
		policy.Filter.ExcludeClasses = ctx.StringSlice("exclude-class")
	}
	if ctx.IsSet("include-annotation") {
		policy.Filter.IncludeAnnotationClasses = ctx.StringSlice("include-annotation")
	}
	if ctx.IsSet("exclude-annotation") {
		policy.Filter.ExcludeAnnotationClasses = ctx.StringSlice("exclude-annotation")
	}

	if err := policy.Validate(); err != nil {
		return retry.Policy{}, "", fmt.Errorf("invalid retry policy: %w", err)
	}
	return policy, path, nil
}

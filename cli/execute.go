package cli

// This file contains the test command: building the test binary, running it
// under the retry orchestrator and recording the outcome.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	gocmd "github.com/perfgo/testretry/cli/go"
	"github.com/perfgo/testretry/cli/runner"
	"github.com/perfgo/testretry/metrics"
	"github.com/perfgo/testretry/model"
	"github.com/perfgo/testretry/retry"
	"github.com/urfave/cli/v2"
)

func (a *App) runTest(ctx *cli.Context) (finalErr error) {
	startTime := time.Now()

	// The policy is checked before anything is built
	policy, err := a.policyFromContext(ctx)
	if err != nil {
		return err
	}

	testArgs := ctx.Args().Slice()
	if len(testArgs) < 1 {
		return fmt.Errorf("no package path specified: please provide a test path that resolves into a single package (e.g., '.' or './pkg/example')")
	}
	pkgPath := testArgs[0]
	if err := validatePackageArg(pkgPath); err != nil {
		return err
	}

	buildArgs, runtimeArgs := separateTestArgs(removeFirstDashDash(testArgs[1:]))
	binaryArgs, dropped := transformTestFlags(runtimeArgs)
	if len(dropped) > 0 {
		a.logger.Warn().Strs("flags", dropped).Msg("Ignoring test flags managed by testretry")
	}
	if len(buildArgs) > 0 {
		a.logger.Debug().Strs("build_args", buildArgs).Msg("Build-time arguments")
	}
	if len(binaryArgs) > 0 {
		a.logger.Debug().Strs("runtime_args", binaryArgs).Msg("Runtime arguments")
	}

	pkgs, err := gocmd.List(ctx.Context, "", pkgPath)
	if err != nil {
		return err
	}
	if len(pkgs) != 1 {
		return fmt.Errorf("package path %q resolves into %d packages: please provide a test path that resolves into a single package", pkgPath, len(pkgs))
	}
	pkg := pkgs[0]
	if !pkg.HasTests {
		return fmt.Errorf("package %s has no test files", pkg.ImportPath)
	}

	tags, err := runner.ScanTags(pkg.Dir)
	if err != nil {
		return fmt.Errorf("failed to scan test tags: %w", err)
	}

	rec := &runRecord{
		history: &model.History{
			ID:        uuid.NewString(),
			Timestamp: startTime,
			Args:      os.Args,
			Target: &model.Target{
				OS:   runtime.GOOS,
				Arch: runtime.GOARCH,
			},
			Test: &model.TestRun{
				PackagePath: pkgPath,
				ImportPath:  pkg.ImportPath,
				BuildArgs:   buildArgs,
				BinaryArgs:  binaryArgs,
				Policy:      policy,
			},
		},
		metrics: metrics.New(),
	}
	if cwd, err := os.Getwd(); err == nil {
		rec.history.WorkDir = cwd
	}
	if info, err := a.getGitInfo(ctx.Context); err == nil {
		rec.history.Git = info
	} else {
		a.logger.Debug().Err(err).Msg("Failed to get git info")
	}

	defer func() {
		h := rec.history
		h.Duration = time.Since(startTime)
		var exitErr cli.ExitCoder
		switch {
		case finalErr == nil:
			h.ExitCode = 0
		case errors.As(finalErr, &exitErr):
			h.ExitCode = exitErr.ExitCode()
		default:
			h.ExitCode = 1
			h.Test.Error = finalErr.Error()
		}

		// Record the history (non-fatal if it fails)
		if err := a.recordHistory(rec); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to record history")
		}
	}()

	binDir, err := os.MkdirTemp("", AppName+"-")
	if err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(binDir); err != nil {
			a.logger.Debug().Err(err).Str("dir", binDir).Msg("Failed to clean up test binary")
		}
	}()

	binary, err := a.buildTestBinary(ctx.Context, pkgPath, buildArgs, binDir)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to build test binary")
		return err
	}

	r := runner.New(a.logger, runner.Config{
		Package:  pkg.ImportPath,
		Binary:   binary,
		Dir:      pkg.Dir,
		Args:     binaryArgs,
		Tags:     tags,
		Parallel: ctx.Int("parallel"),
		Stdout:   io.MultiWriter(os.Stdout, &rec.stdout),
		Stderr:   io.MultiWriter(os.Stderr, &rec.stderr),
	})

	orchestrator, err := retry.NewOrchestrator(a.logger, policy, r, nil, retry.WithObserver(rec.metrics))
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("package", pkg.ImportPath).
		Int("max_retries", policy.MaxRetries).
		Int("max_failures", policy.MaxFailures).
		Int("parallel", ctx.Int("parallel")).
		Msg("Running tests")

	if err := r.Run(ctx.Context, orchestrator); err != nil {
		a.logger.Error().Err(err).Msg("Test execution failed")
		return err
	}

	verdict, err := orchestrator.Finish()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	rec.history.Test.Verdict = verdict

	if path := ctx.Path("metrics-file"); path != "" {
		if err := rec.metrics.WriteTextfile(path); err != nil {
			a.logger.Warn().Err(err).Str("path", path).Msg("Failed to write metrics file")
		}
	}

	fmt.Fprintln(os.Stdout)
	printReport(os.Stdout, verdict, reportOptions{
		Reproduce: func(id retry.TestIdentity) string {
			return runner.BuildGoTestCommand(pkgPath, buildArgs, runner.RunOptions{Args: binaryArgs, Test: id.Method})
		},
	})

	a.logger.Info().
		Str("verdict", string(verdict.Verdict)).
		Int("tests", len(verdict.Tests)).
		Int("retries", verdict.Retries()).
		Str("id", rec.history.ShortID()).
		Msg("Tests completed")

	if !verdict.Passed() {
		return cli.Exit("", 1)
	}
	return nil
}

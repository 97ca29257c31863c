package cli

// This file contains the view command for displaying test results from history.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/perfgo/testretry/cli/runner"
	"github.com/perfgo/testretry/history"
	"github.com/perfgo/testretry/model"
	"github.com/perfgo/testretry/retry"
	"github.com/urfave/cli/v2"
)

type viewArgs struct {
	ID     string // index or ID prefix, "0" by default
	Test   string // glob over Package.TestName
	Output bool
}

// parseViewArgs parses the arguments of view by hand: negative indexes would
// otherwise be taken for flags.
func parseViewArgs(in []string) (viewArgs, error) {
	args := viewArgs{ID: "0"}
	idSet := false

	for i := 0; i < len(in); i++ {
		arg := in[i]
		switch {
		case arg == "--":
			continue
		case arg == "--output" || arg == "-output":
			args.Output = true
		case arg == "--test" || arg == "-test":
			if i+1 >= len(in) {
				return viewArgs{}, fmt.Errorf("flag %s requires a glob", arg)
			}
			i++
			args.Test = in[i]
		case strings.HasPrefix(arg, "--test=") || strings.HasPrefix(arg, "-test="):
			_, args.Test, _ = strings.Cut(arg, "=")
		case idSet:
			return viewArgs{}, fmt.Errorf("unexpected argument %q", arg)
		case isIndexArg(arg) || !strings.HasPrefix(arg, "-"):
			args.ID = arg
			idSet = true
		default:
			return viewArgs{}, fmt.Errorf("unknown flag %q", arg)
		}
	}
	return args, nil
}

// isIndexArg reports whether arg is "-" followed by digits only.
func isIndexArg(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	for _, r := range arg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a *App) view(ctx *cli.Context) error {
	args, err := parseViewArgs(ctx.Args().Slice())
	if err != nil {
		return err
	}

	var match glob.Glob
	if args.Test != "" {
		if match, err = glob.Compile(args.Test); err != nil {
			return fmt.Errorf("invalid test pattern %q: %w", args.Test, err)
		}
	}

	root, err := history.GetRoot()
	if err != nil {
		return err
	}

	historyEntries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entry, err := history.Select(historyEntries, args.ID)
	if err != nil {
		return err
	}

	return a.displayHistoryEntry(entry, match, args.Output)
}

func (a *App) displayHistoryEntry(entry *history.Entry, match glob.Glob, showOutput bool) error {
	h := entry.History

	fmt.Printf("=== Test Run: %s ===\n", h.ShortID())
	fmt.Printf("Time: %s\n", h.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", h.Duration)
	fmt.Printf("Exit Code: %d\n", h.ExitCode)
	if h.WorkDir != "" {
		fmt.Printf("Working Dir: %s\n", h.WorkDir)
	}
	if h.Git != nil && h.Git.Commit != "" {
		commit := h.Git.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		fmt.Printf("Git Commit: %s", commit)
		if h.Git.Branch != "" {
			fmt.Printf(" (%s)", h.Git.Branch)
		}
		fmt.Println()
	}

	tr := h.Test
	if tr == nil {
		fmt.Println("No test data recorded")
		return nil
	}
	fmt.Printf("Package: %s", tr.PackagePath)
	if tr.ImportPath != "" {
		fmt.Printf(" (%s)", tr.ImportPath)
	}
	fmt.Println()
	fmt.Printf("Policy: %s\n", describePolicy(tr.Policy))
	fmt.Println()

	if tr.Verdict == nil {
		fmt.Printf("Run did not finish: %s\n", tr.Error)
	} else {
		printReport(os.Stdout, tr.Verdict, reportOptions{
			Reproduce: func(id retry.TestIdentity) string {
				return runner.BuildGoTestCommand(tr.PackagePath, tr.BuildArgs, runner.RunOptions{Args: tr.BinaryArgs, Test: id.Method})
			},
			Match: match,
			All:   match != nil,
		})
	}

	if showOutput {
		return a.displayOutput(entry.FullPath, h.Artifacts)
	}
	return nil
}

func describePolicy(p retry.Policy) string {
	parts := []string{
		fmt.Sprintf("max-retries=%d", p.MaxRetries),
		fmt.Sprintf("max-failures=%d", p.MaxFailures),
	}
	if p.FailOnPassedAfterRetry {
		parts = append(parts, "fail-on-passed-after-retry")
	}
	for _, f := range []struct {
		name     string
		patterns []string
	}{
		{"include-class", p.Filter.IncludeClasses},
		{"exclude-class", p.Filter.ExcludeClasses},
		{"include-annotation", p.Filter.IncludeAnnotationClasses},
		{"exclude-annotation", p.Filter.ExcludeAnnotationClasses},
	} {
		if len(f.patterns) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", f.name, strings.Join(f.patterns, ",")))
		}
	}
	return strings.Join(parts, " ")
}

func (a *App) displayOutput(runDir string, artifacts []model.Artifact) error {
	for _, artifact := range artifacts {
		if artifact.Type != model.ArtifactTypeStdout {
			continue
		}
		data, err := os.ReadFile(filepath.Join(runDir, artifact.File))
		if err != nil {
			return fmt.Errorf("failed to read stdout: %w", err)
		}
		fmt.Println()
		fmt.Println(headerStyle.Sprint("=== Output ==="))
		fmt.Print(string(data))
		return nil
	}
	fmt.Println("No output recorded")
	return nil
}

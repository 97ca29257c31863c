package cli

// This file contains the list command for displaying previous test runs.

import (
	"fmt"
	"strings"
	"time"

	"github.com/perfgo/testretry/history"
	"github.com/perfgo/testretry/model"
	"github.com/perfgo/testretry/retry"
	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	filterPath := ctx.String("path")
	limit := ctx.Int("limit")

	root, err := history.GetRoot()
	if err != nil {
		return err
	}

	// Load all history entries, newest first
	historyEntries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Apply path filter if specified
	var filteredEntries []history.Entry
	for _, entry := range historyEntries {
		if filterPath == "" || strings.Contains(entry.History.WorkDir, filterPath) ||
			(entry.History.Test != nil && strings.Contains(entry.History.Test.PackagePath, filterPath)) {
			filteredEntries = append(filteredEntries, entry)
		}
	}

	if len(filteredEntries) == 0 {
		if filterPath != "" {
			fmt.Printf("No history entries found matching path: %s\n", filterPath)
		} else {
			fmt.Println("No history entries found")
		}
		return nil
	}

	// Apply limit
	displayRuns := filteredEntries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Printf("\n=== History (%d total) ===\n\n", len(filteredEntries))

	for _, entry := range displayRuns {
		printListEntry(entry)
	}

	fmt.Printf("\nView a run: %s view <ID>\n", AppName)

	return nil
}

func printListEntry(entry history.Entry) {
	tr := entry.History
	timestamp := tr.Timestamp.Format("2006-01-02 15:04:05")
	duration := tr.Duration.Round(time.Millisecond)

	status := passStyle.Sprint("✓")
	if tr.ExitCode != 0 {
		status = failStyle.Sprint("✗")
	}

	fmt.Printf("%s  %s  [%s]  exit=%d  id=%s\n", status, timestamp, duration, tr.ExitCode, tr.ShortID())
	if len(tr.Args) > 1 {
		fmt.Printf("   Args: %s\n", strings.Join(tr.Args[1:], " "))
	}
	if tr.WorkDir != "" {
		fmt.Printf("   Path: %s\n", tr.WorkDir)
	}
	if tr.Git != nil && tr.Git.Commit != "" {
		shortCommit := tr.Git.Commit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
		fmt.Printf("   Commit: %s", shortCommit)
		if tr.Git.Branch != "" {
			fmt.Printf(" (%s)", tr.Git.Branch)
		}
		fmt.Println()
	}
	if tr.Test != nil {
		fmt.Printf("   %s\n", runSummary(tr.Test))
	}
	for _, artifact := range tr.Artifacts {
		fmt.Printf("   %s: %s (%.1f KB)\n", artifact.Type, artifact.File, float64(artifact.Size)/1024)
	}
	fmt.Printf("   %s\n", entry.FullPath)
	fmt.Println()
}

// runSummary condenses a recorded run into one line.
func runSummary(tr *model.TestRun) string {
	if tr.Verdict == nil {
		if tr.Error != "" {
			return "Error: " + tr.Error
		}
		return "No verdict"
	}
	v := tr.Verdict
	summary := fmt.Sprintf("Verdict: %s (%d tests, %d flaky, %d failed, %d retries, max-retries=%d)",
		v.Verdict, len(v.Tests), v.Count(retry.DispositionFlaky), v.Count(retry.DispositionFailed),
		v.Retries(), tr.Policy.MaxRetries)
	if v.BudgetTripped {
		summary += ", failure budget exhausted"
	}
	return summary
}

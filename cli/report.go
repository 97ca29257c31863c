package cli

// This file contains the rendering of run verdicts.

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gobwas/glob"
	"github.com/perfgo/testretry/retry"
)

var (
	headerStyle = color.New(color.FgCyan, color.Bold)
	passStyle   = color.New(color.FgGreen, color.Bold)
	failStyle   = color.New(color.FgRed, color.Bold)
	flakyStyle  = color.New(color.FgYellow, color.Bold)
	mutedStyle  = color.New(color.FgHiBlack)
)

const maxReportDetailLines = 10

type reportOptions struct {
	// Reproduce renders the command re-running a single test. Optional.
	Reproduce func(id retry.TestIdentity) string
	// Match restricts the listed tests to identities matching the glob.
	Match glob.Glob
	// All lists passed and skipped tests as well.
	All bool
}

func dispositionStyle(d retry.Disposition) *color.Color {
	switch d {
	case retry.DispositionFailed:
		return failStyle
	case retry.DispositionFlaky:
		return flakyStyle
	case retry.DispositionPassed:
		return passStyle
	default:
		return mutedStyle
	}
}

func dispositionLabel(d retry.Disposition) string {
	if d == retry.DispositionFlaky {
		return "FLAKY"
	}
	return string(d)
}

func printReport(w io.Writer, v *retry.RunVerdict, opts reportOptions) {
	candidates := v.Tests
	if !opts.All {
		candidates = v.Select(retry.DispositionFailed, retry.DispositionFlaky)
	}
	var listed []retry.TestVerdict
	for _, tv := range candidates {
		if opts.Match == nil || opts.Match.Match(tv.Identity.String()) {
			listed = append(listed, tv)
		}
	}

	fmt.Fprintln(w, headerStyle.Sprint("=== Retry summary ==="))
	if len(listed) > 0 {
		fmt.Fprintln(w)
	}
	for _, tv := range listed {
		printTestVerdict(w, tv, opts)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d tests: %d passed, %d flaky, %d failed, %d skipped, %d retries\n",
		len(v.Tests),
		v.Count(retry.DispositionPassed),
		v.Count(retry.DispositionFlaky),
		v.Count(retry.DispositionFailed),
		v.Count(retry.DispositionSkipped),
		v.Retries(),
	)
	if v.BudgetTripped {
		fmt.Fprintln(w, flakyStyle.Sprint("Failure budget exhausted, later failures were not retried"))
	}
	if v.Passed() {
		fmt.Fprintln(w, passStyle.Sprint(retry.VerdictPass))
	} else {
		fmt.Fprintln(w, failStyle.Sprint(retry.VerdictFail))
	}
}

func printTestVerdict(w io.Writer, tv retry.TestVerdict, opts reportOptions) {
	results := make([]string, 0, len(tv.Attempts))
	for _, a := range tv.Attempts {
		results = append(results, string(a.Result))
	}

	label := dispositionStyle(tv.Disposition).Sprintf("%-8s", dispositionLabel(tv.Disposition))
	fmt.Fprintf(w, "%s %s  %s\n", label, tv.Identity, mutedStyle.Sprint(strings.Join(results, " → ")))
	if len(tv.Identity.MethodTags)+len(tv.Identity.ClassTags) > 0 {
		tags := append(append([]string{}, tv.Identity.ClassTags...), tv.Identity.MethodTags...)
		fmt.Fprintf(w, "         tags: %s\n", strings.Join(tags, ", "))
	}

	if tv.Disposition == retry.DispositionFailed {
		for _, line := range lastFailureLines(tv.Attempts, maxReportDetailLines) {
			fmt.Fprintf(w, "         %s %s\n", mutedStyle.Sprint("|"), line)
		}
	}
	if opts.Reproduce != nil && tv.Disposition != retry.DispositionPassed && tv.Disposition != retry.DispositionSkipped {
		fmt.Fprintf(w, "         reproduce: %s\n", opts.Reproduce(tv.Identity))
	}
}

// lastFailureLines returns the trailing lines of the last failed attempt's
// detail.
func lastFailureLines(attempts []retry.Attempt, max int) []string {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Result != retry.ResultFailed || attempts[i].Detail == "" {
			continue
		}
		lines := strings.Split(strings.TrimRight(attempts[i].Detail, "\n"), "\n")
		if len(lines) > max {
			lines = lines[len(lines)-max:]
		}
		for j := range lines {
			lines[j] = strings.TrimSpace(lines[j])
		}
		return lines
	}
	return nil
}

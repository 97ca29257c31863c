package runner

// options.go contains utilities for building test binary invocations.

import (
	"regexp"
	"runtime"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/urfave/cli/v2"
)

// RunOptions describes one execution of a compiled test binary.
type RunOptions struct {
	Package string   // Import path reported by test2json
	Binary  string   // Compiled test binary (go test -c)
	Args    []string // Runtime arguments, already -test. prefixed
	Test    string   // Single top-level test to run; empty runs the whole selection
}

// RunPattern returns a -test.run expression matching exactly one top-level test.
func RunPattern(test string) string {
	return "^" + regexp.QuoteMeta(test) + "$"
}

// BuildBinaryArgs builds the arguments passed to the test binary itself.
// -test.count=1 is appended last so every execution reports each test once.
func BuildBinaryArgs(opts RunOptions) []string {
	args := make([]string, 0, len(opts.Args)+3)
	args = append(args, opts.Args...)
	if opts.Test != "" {
		args = append(args, "-test.run="+RunPattern(opts.Test))
	}
	args = append(args, "-test.count=1")
	return args
}

// BuildTest2JSONArgs builds the go tool arguments running the binary under
// test2json.
func BuildTest2JSONArgs(opts RunOptions) []string {
	args := []string{"tool", "test2json", "-t"}
	if opts.Package != "" {
		args = append(args, "-p", opts.Package)
	}
	args = append(args, "--", opts.Binary, "-test.v=test2json")
	return append(args, BuildBinaryArgs(opts)...)
}

// BuildReproduceCommand renders a shell command re-running a single test
// the same way a retry does.
func BuildReproduceCommand(opts RunOptions) string {
	args := BuildBinaryArgs(opts)

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(opts.Binary))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// BuildGoTestCommand renders a go test invocation re-running a single test
// from source, for when the compiled binary is gone.
func BuildGoTestCommand(pkgPath string, buildArgs []string, opts RunOptions) string {
	parts := []string{"go", "test"}
	parts = append(parts, buildArgs...)
	parts = append(parts, "-count=1")
	if opts.Test != "" {
		parts = append(parts, "-run="+RunPattern(opts.Test))
	}
	parts = append(parts, pkgPath)
	if len(opts.Args) > 0 {
		parts = append(parts, "-args")
		parts = append(parts, opts.Args...)
	}

	for i, part := range parts {
		parts[i] = shellescape.Quote(part)
	}
	return strings.Join(parts, " ")
}

// ParallelFlag returns the flag bounding concurrent retry executions.
func ParallelFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "parallel",
		Usage:   "Maximum number of retry executions running at the same time",
		EnvVars: []string{"TESTRETRY_PARALLEL"},
		Value:   runtime.GOMAXPROCS(0),
	}
}

package gocmd

// go.go wraps invocations of the go command.

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// listFormat prints one tab separated record per package.
const listFormat = "{{.ImportPath}}\t{{.Dir}}\t{{len .TestGoFiles}}\t{{len .XTestGoFiles}}"

// Package is a package resolved by 'go list'.
type Package struct {
	ImportPath string
	Dir        string
	HasTests   bool
}

// List runs 'go list' on a package pattern in dir and returns the matching
// packages. Failures are reported with the first line of the go command's
// diagnostics.
func List(ctx context.Context, dir, pattern string) ([]Package, error) {
	cmd := CommandContext(ctx, "list", "-f", listFormat, pattern)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, listError(pattern, strings.TrimSpace(stderr.String()), err)
	}

	var packages []Package
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("unexpected go list output %q", line)
		}
		packages = append(packages, Package{
			ImportPath: fields[0],
			Dir:        fields[1],
			HasTests:   fields[2] != "0" || fields[3] != "0",
		})
	}
	return packages, nil
}

func listError(pattern, msg string, err error) error {
	switch {
	case strings.Contains(msg, "no Go files in"):
		return fmt.Errorf("invalid package path %q: directory contains no Go files", pattern)
	case strings.Contains(msg, "is not in std"),
		strings.Contains(msg, "is not in GOROOT"),
		strings.Contains(msg, "cannot find package"):
		return fmt.Errorf("invalid package path %q: package not found", pattern)
	}
	if first, _, _ := strings.Cut(msg, "\n"); first != "" {
		return fmt.Errorf("invalid package path %q: %s", pattern, first)
	}
	return fmt.Errorf("invalid package path %q: %w", pattern, err)
}

// Command creates an exec.Cmd for running a Go command.
// The first argument is the Go subcommand (e.g., "build", "test"), followed by its arguments.
func Command(args ...string) *exec.Cmd {
	return exec.Command("go", args...)
}

// CommandContext is Command bound to ctx. The process is killed when ctx is
// done.
func CommandContext(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "go", args...)
}

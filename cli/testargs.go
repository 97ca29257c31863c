package cli

// This file contains argument processing utilities for separating
// build-time and runtime test arguments.

import (
	"fmt"
	"strings"
)

// Build-only flags (used during go test -c)
var buildOnlyFlags = map[string]bool{
	"-tags":       true,
	"-race":       true,
	"-msan":       true,
	"-asan":       true,
	"-cover":      true,
	"-covermode":  true,
	"-coverpkg":   true,
	"-gcflags":    true,
	"-ldflags":    true,
	"-asmflags":   true,
	"-gccgoflags": true,
	"-mod":        true,
	"-modfile":    true,
	"-overlay":    true,
	"-pkgdir":     true,
	"-toolexec":   true,
	"-work":       true,
	"-trimpath":   true,
}

// Boolean build flags never consume the following argument.
var boolBuildFlags = map[string]bool{
	"-race":     true,
	"-msan":     true,
	"-asan":     true,
	"-cover":    true,
	"-work":     true,
	"-trimpath": true,
}

// Runtime flags controlled by the runner itself: every execution reports
// each test exactly once through test2json.
var managedTestFlags = map[string]bool{
	"count": true,
	"json":  true,
	"v":     true,
}

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

// validatePackageArg checks the first argument names a package, not a flag
// or a pattern matching several packages.
func validatePackageArg(arg string) error {
	if strings.HasPrefix(arg, "-") {
		return fmt.Errorf("no package path specified: the first argument %q is a flag, please provide a test path that resolves into a single package (e.g., '.' or './pkg/example')", arg)
	}
	if strings.Contains(arg, "...") {
		return fmt.Errorf("package path %q is a pattern: please provide a test path that resolves into a single package", arg)
	}
	return nil
}

func separateTestArgs(args []string) (buildArgs, runtimeArgs []string) {
	buildArgs = []string{}
	runtimeArgs = []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			runtimeArgs = append(runtimeArgs, arg)
			continue
		}

		flagName := arg
		hasValue := false
		if idx := strings.Index(arg, "="); idx > 0 {
			flagName = arg[:idx]
			hasValue = true
		}
		flagName = "-" + strings.TrimLeft(flagName, "-")

		if !buildOnlyFlags[flagName] {
			runtimeArgs = append(runtimeArgs, arg)
			continue
		}

		buildArgs = append(buildArgs, arg)
		// Some flags take a separate value, include it
		if !hasValue && !boolBuildFlags[flagName] && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			buildArgs = append(buildArgs, args[i])
		}
	}

	return buildArgs, runtimeArgs
}

// transformTestFlags rewrites go test style runtime flags into the -test.
// prefixed form the compiled binary accepts. Flags managed by the runner are
// dropped and returned separately.
func transformTestFlags(args []string) (transformed, dropped []string) {
	transformed = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if !strings.HasPrefix(arg, "-") {
			// Not a flag, keep as-is (could be a flag value)
			transformed = append(transformed, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		name = strings.TrimPrefix(name, "test.")

		if managedTestFlags[name] {
			dropped = append(dropped, arg)
			// -count takes a separate value
			if name == "count" && !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				dropped = append(dropped, args[i])
			}
			continue
		}

		if hasValue {
			transformed = append(transformed, fmt.Sprintf("-test.%s=%s", name, value))
		} else {
			transformed = append(transformed, fmt.Sprintf("-test.%s", name))
		}
	}

	return transformed, dropped
}

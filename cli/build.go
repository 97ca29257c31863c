package cli

// This file contains test binary building functionality.

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	gocmd "github.com/perfgo/testretry/cli/go"
)

// buildTestBinary compiles the test binary of pkgPath into outDir and
// returns its absolute path.
func (a *App) buildTestBinary(ctx context.Context, pkgPath string, buildArgs []string, outDir string) (string, error) {
	binaryName := filepath.Join(outDir, AppName+".test")
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	binaryName, err := filepath.Abs(binaryName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve binary path: %w", err)
	}

	a.logger.Info().
		Str("package", pkgPath).
		Str("output", binaryName).
		Msg("Building test binary")

	args := []string{"test", "-c", "-o", binaryName}
	if len(buildArgs) > 0 {
		args = append(args, buildArgs...)
		a.logger.Debug().Strs("build_args", buildArgs).Msg("Adding build arguments to go test")
	}
	args = append(args, pkgPath)

	cmd := gocmd.CommandContext(ctx, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debug().
		Str("command", cmd.String()).
		Msg("Executing go test -c")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to build test binary: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	// go test -c writes nothing for a package without test files
	if _, err := os.Stat(binaryName); err != nil {
		return "", fmt.Errorf("test binary not found after build: %w", err)
	}

	return binaryName, nil
}

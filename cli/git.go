package cli

// This file contains Git integration utilities for retrieving
// repository information.

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/perfgo/testretry/model"
)

func gitOutput(ctx context.Context, args ...string) (string, error) {
	output, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (a *App) getGitInfo(ctx context.Context) (*model.Git, error) {
	commit, err := gitOutput(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get git commit: %w", err)
	}

	branch, err := gitOutput(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get git branch: %w", err)
	}

	info := &model.Git{Commit: commit, Branch: branch}
	if root, err := gitOutput(ctx, "rev-parse", "--show-toplevel"); err == nil {
		info.Repo = filepath.Base(root)
	}
	return info, nil
}

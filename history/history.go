package history

// This file contains shared history utilities for recording, loading and
// selecting test run history.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/perfgo/testretry/model"
	"github.com/rs/zerolog"
)

const (
	// DirName is the history directory below the repository root.
	DirName = ".testretry"
	// FileName is the metadata file of every recorded run.
	FileName = "history.json"
)

// ErrNoHistory is returned when no run has been recorded yet.
var ErrNoHistory = errors.New("no test runs found")

type Entry struct {
	History  model.History
	FullPath string
}

// RepoRoot returns the top level directory of the enclosing git repository.
func RepoRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not in a git repository: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// GetRoot returns the .testretry directory path from the git repository root.
func GetRoot() (string, error) {
	repoRoot, err := RepoRoot()
	if err != nil {
		return "", err
	}
	root := filepath.Join(repoRoot, DirName)

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return "", fmt.Errorf("%w in %s", ErrNoHistory, root)
	}

	return root, nil
}

// RunDir returns the directory a run is recorded in:
// <root>/history/<timestamp>-<commit>-<id>.
func RunDir(root string, h *model.History) string {
	commit := "nogit"
	if h.Git != nil && h.Git.Commit != "" {
		commit = h.Git.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
	}
	name := fmt.Sprintf("%s-%s-%s", h.Timestamp.Format("20060102-150405"), commit, h.ShortID())
	return filepath.Join(root, "history", name)
}

// Write stores h as the history.json of runDir.
func Write(runDir string, h *model.History) error {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, FileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// LoadEntries loads all history entries below root, newest first.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			historyPath := filepath.Join(path, FileName)
			if _, err := os.Stat(historyPath); err == nil {
				history, err := parseHistoryJSON(historyPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", historyPath).Msg("Failed to parse history.json")
					return nil
				}

				entries = append(entries, Entry{
					History:  history,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk %s directory: %w", DirName, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].History.Timestamp.After(entries[j].History.Timestamp)
	})
	return entries, nil
}

// Select picks an entry from entries sorted newest first. arg is either an
// index counting back from the last run (0 last, -1 second to last, ...) or
// a prefix of a run ID.
func Select(entries []Entry, arg string) (*Entry, error) {
	if len(entries) == 0 {
		return nil, ErrNoHistory
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d history entries)", arg, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].History.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no history entry found matching ID: %s", arg)
}

// parseHistoryJSON parses a history.json file.
func parseHistoryJSON(historyPath string) (model.History, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		return model.History{}, err
	}

	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return model.History{}, err
	}

	return history, nil
}

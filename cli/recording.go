package cli

// This file contains test run recording functionality for saving
// test run metadata and artifacts to the history directory.

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perfgo/testretry/history"
	"github.com/perfgo/testretry/metrics"
	"github.com/perfgo/testretry/model"
)

// runRecord collects what a test invocation leaves behind in history.
type runRecord struct {
	history *model.History
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	metrics *metrics.Metrics
}

func (a *App) recordHistory(rec *runRecord) error {
	repoRoot, err := history.RepoRoot()
	if err != nil {
		return err
	}
	h := rec.history

	// Store WorkDir relative to the repo root
	if h.WorkDir != "" {
		if rel, err := filepath.Rel(repoRoot, h.WorkDir); err == nil {
			h.WorkDir = rel
		}
	}

	runDir := history.RunDir(filepath.Join(repoRoot, history.DirName), h)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := writeArtifact(h, runDir, "stdout.txt", model.ArtifactTypeStdout, rec.stdout.Bytes()); err != nil {
		return err
	}
	if err := writeArtifact(h, runDir, "stderr.txt", model.ArtifactTypeStderr, rec.stderr.Bytes()); err != nil {
		return err
	}

	if rec.metrics != nil && h.Test != nil && h.Test.Verdict != nil {
		metricsPath := filepath.Join(runDir, "metrics.prom")
		if err := rec.metrics.WriteTextfile(metricsPath); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to save metrics artifact")
		} else if info, err := os.Stat(metricsPath); err == nil {
			h.Artifacts = append(h.Artifacts, model.Artifact{
				Type: model.ArtifactTypeMetrics,
				Size: uint64(info.Size()),
				File: "metrics.prom",
			})
		}
	}

	if err := history.Write(runDir, h); err != nil {
		return err
	}

	a.logger.Debug().Str("dir", runDir).Str("id", h.ID).Msg("Recorded test run")
	return nil
}

func writeArtifact(h *model.History, runDir, name string, typ model.ArtifactType, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := os.WriteFile(filepath.Join(runDir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", typ, err)
	}
	h.Artifacts = append(h.Artifacts, model.Artifact{
		Type: typ,
		Size: uint64(len(data)),
		File: name,
	})
	return nil
}

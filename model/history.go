package model

import (
	"time"

	"github.com/perfgo/testretry/retry"
)

// History represents a single testretry execution.
type History struct {
	// Unique ID for this execution (random UUID)
	ID string `json:"id"`
	// Timestamp when the execution started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Working directory where command was run (relative to repo root)
	WorkDir string `json:"workdir"`
	// Exit code of the execution
	ExitCode int `json:"exit_code"`
	// Duration of execution
	Duration time.Duration `json:"duration"`
	// Git information
	Git *Git `json:"git,omitempty"`
	// Target execution environment
	Target *Target `json:"target,omitempty"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`

	Test *TestRun `json:"test,omitempty"`
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
	// Repository name
	Repo string `json:"repo,omitempty"`
}

// Target contains information about the execution environment
type Target struct {
	OS   string `json:"os,omitempty"`
	Arch string `json:"arch,omitempty"`
}

// TestRun contains the package under test and how it was retried.
type TestRun struct {
	// Package path as given on the command line (e.g., ".", "./pkg/foo")
	PackagePath string `json:"package_path,omitempty"`
	// Import path reported for every test of the run
	ImportPath string `json:"import_path,omitempty"`
	// Build flags passed to go test -c
	BuildArgs []string `json:"build_args,omitempty"`
	// Runtime arguments passed to the test binary, -test. prefixed
	BinaryArgs []string `json:"binary_args,omitempty"`
	// Policy the run was executed with
	Policy retry.Policy `json:"policy"`
	// Verdict of the run; nil when the run aborted before finishing
	Verdict *retry.RunVerdict `json:"verdict,omitempty"`
	// Error that aborted the run, if any
	Error string `json:"error,omitempty"`
}

// ShortID returns the first 8 characters of the run ID.
func (h *History) ShortID() string {
	if len(h.ID) > 8 {
		return h.ID[:8]
	}
	return h.ID
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeStdout ArtifactType = iota
	ArtifactTypeStderr
	ArtifactTypeMetrics
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeStdout:
		return "stdout"
	case ArtifactTypeStderr:
		return "stderr"
	case ArtifactTypeMetrics:
		return "metrics"
	default:
		return "unknown"
	}
}

// Artifact represents a file generated during execution
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to run dir
}

// Package executor defines how stored snippets are run in a sandbox.
// internal/executor/docker is the only implementation.
package executor

import (
	"context"
	"errors"
	"time"
)

// TimeoutExitCode is reported when a run exceeds its time limit, as with the
// coreutils timeout command.
const TimeoutExitCode = 124

var ErrUnsupportedLanguage = errors.New("executor: language cannot be run")

// Request is one program to run.
type Request struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Result is the output and status of a finished run.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Runner runs code in an isolated environment.
type Runner interface {
	// Supports reports whether snippets in language can be run.
	Supports(language string) bool
	// Run returns ErrUnsupportedLanguage for languages Supports rejects.
	Run(ctx context.Context, req Request) (*Result, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/executor"
)

// RunService executes stored snippets with an executor.Runner. A nil runner
// means the feature is switched off and every run is Unavailable.
type RunService struct {
	snippets *SnippetService
	runner   executor.Runner
	logger   *slog.Logger
}

func NewRunService(snippets *SnippetService, runner executor.Runner, logger *slog.Logger) *RunService {
	return &RunService{snippets: snippets, runner: runner, logger: logger}
}

// Enabled reports whether a runner is configured.
func (s *RunService) Enabled() bool {
	return s.runner != nil
}

// Run executes the current code of snippet id.
func (s *RunService) Run(ctx context.Context, id int64) (*executor.Result, error) {
	if s.runner == nil {
		return nil, apperror.Unavailable("snippet runner is not enabled")
	}

	snippet, err := s.snippets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.runner.Supports(snippet.Language) {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("running %q snippets is not supported", snippet.Language))
	}

	result, err := s.runner.Run(ctx, executor.Request{Language: snippet.Language, Code: snippet.Code})
	if err != nil {
		if errors.Is(err, executor.ErrUnsupportedLanguage) {
			return nil, apperror.ValidationFailed("language", err.Error())
		}
		s.logger.Error("snippet run failed", slog.Int64("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("running snippet %d: %w", id, err)
	}
	return result, nil
}

package docker_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-share/internal/executor"
	"github.com/sakif/snippet-share/internal/executor/docker"
)

// newExecutor skips the test when Docker is not usable here.
func newExecutor(t *testing.T, cfg docker.Config) *docker.Executor {
	t.Helper()
	if os.Getenv("CI") != "" {
		t.Skip("skipping docker test in CI environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	exec, err := docker.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestDockerExecutor(t *testing.T) {
	cfg := docker.DefaultConfig()
	cfg.PoolSize = 1
	exec := newExecutor(t, cfg)

	t.Run("successful execution", func(t *testing.T) {
		res, err := exec.Run(context.Background(), executor.Request{
			Language: "python",
			Code:     `print("Hello from test sandbox!")`,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Contains(t, res.Stdout, "Hello from test sandbox!")
		assert.Empty(t, res.Stderr)
		assert.Greater(t, res.Duration, time.Duration(0))
	})

	t.Run("syntax error", func(t *testing.T) {
		res, err := exec.Run(context.Background(), executor.Request{
			Language: "python",
			Code:     `print("Missing parenthesis"`,
		})
		require.NoError(t, err)
		assert.NotEqual(t, 0, res.ExitCode)
		assert.Contains(t, res.Stderr, "SyntaxError")
	})

	t.Run("multiline logic", func(t *testing.T) {
		res, err := exec.Run(context.Background(), executor.Request{
			Language: "python",
			Code: strings.Join([]string{
				"def fib(n):",
				"    if n <= 1: return n",
				"    return fib(n-1) + fib(n-2)",
				"print(fib(5))",
			}, "\n"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Contains(t, res.Stdout, "5")
	})

	t.Run("unsupported language", func(t *testing.T) {
		assert.False(t, exec.Supports("c"))
		_, err := exec.Run(context.Background(), executor.Request{Language: "c", Code: "int main;"})
		assert.ErrorIs(t, err, executor.ErrUnsupportedLanguage)
	})
}

func TestDockerExecutor_Timeout(t *testing.T) {
	cfg := docker.DefaultConfig()
	cfg.PoolSize = 1
	cfg.Timeout = 2 * time.Second
	exec := newExecutor(t, cfg)

	res, err := exec.Run(context.Background(), executor.Request{Language: "python", Code: `while True: pass`})
	require.NoError(t, err)
	assert.Equal(t, executor.TimeoutExitCode, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
}

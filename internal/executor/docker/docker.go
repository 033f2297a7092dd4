// Package docker runs snippets inside throw-away Docker containers: no network,
// read-only root filesystem, unprivileged user, capped memory and CPU.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/snippet-share/internal/executor"
)

var _ executor.Runner = (*Executor)(nil)

// Executor implements executor.Runner with Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New connects to the daemon described by the DOCKER_* environment, pulls the
// image and starts warming the pool. ctx bounds the connection check and pull.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: daemon unreachable: %w", err)
	}

	logger.Info("pulling runner image", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pulling %s: %w", cfg.Image, err)
	}
	// The pull only completes once the progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	e := &Executor{cli: cli, config: cfg, logger: logger}
	e.pool = NewPool(cfg.PoolSize, e.createContainer, e.removeContainer, logger)
	e.pool.Start()
	return e, nil
}

func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

func (e *Executor) Supports(language string) bool {
	_, ok := e.config.Commands[language]
	return ok
}

// Run executes req.Code with the command configured for req.Language.
// Exceeding the timeout is not an error: the result carries exit code 124.
func (e *Executor) Run(ctx context.Context, req executor.Request) (*executor.Result, error) {
	command, ok := e.config.Commands[req.Language]
	if !ok {
		return nil, fmt.Errorf("%w: %q", executor.ErrUnsupportedLanguage, req.Language)
	}

	start := time.Now()

	containerID, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker: acquiring container: %w", err)
	}
	defer e.removeContainer(containerID)

	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	cmd := append(append([]string{}, command...), req.Code)
	execResp, err := e.cli.ContainerExecCreate(runCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("docker: creating exec: %w", err)
	}

	attach, err := e.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker: attaching to exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		// The exec stream multiplexes stdout and stderr.
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		close(done)
	}()

	result := &executor.Result{}
	select {
	case <-done:
		inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return nil, fmt.Errorf("docker: inspecting exec: %w", err)
		}
		result.ExitCode = inspect.ExitCode
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Closing the attachment unblocks StdCopy; the container is removed by the defer.
		attach.Close()
		<-done
		result.ExitCode = executor.TimeoutExitCode
		stderr.WriteString("\nExecution timed out.\n")
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Duration = time.Since(start)

	e.logger.Info("snippet run finished",
		slog.String("language", req.Language),
		slog.Int("exitCode", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// createContainer starts an idle container that later receives one exec.
func (e *Executor) createContainer(ctx context.Context) (string, error) {
	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image: e.config.Image,
			Cmd:   []string{"sleep", "infinity"},
			User:  "nobody",
		},
		&container.HostConfig{
			NetworkMode:    "none",
			ReadonlyRootfs: true,
			Resources: container.Resources{
				Memory:   e.config.MemoryLimit,
				NanoCPUs: int64(e.config.CPULimit * 1e9),
			},
		},
		nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("docker: creating container: %w", err)
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		e.removeContainer(resp.ID)
		return "", fmt.Errorf("docker: starting container: %w", err)
	}
	return resp.ID, nil
}

func (e *Executor) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}

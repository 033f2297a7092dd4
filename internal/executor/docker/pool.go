package docker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pool keeps PoolSize started containers ready so a run does not pay for
// container start-up. Each container is used for exactly one run and then
// removed; the manager goroutine replaces it.
//
// The pool knows nothing about Docker: create and remove are injected, which
// keeps it testable without a daemon.
type Pool struct {
	create  func(ctx context.Context) (string, error)
	remove  func(id string)
	logger  *slog.Logger
	backoff time.Duration

	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

func NewPool(size int, create func(ctx context.Context) (string, error), remove func(id string), logger *slog.Logger) *Pool {
	return &Pool{
		create:     create,
		remove:     remove,
		logger:     logger,
		backoff:    time.Second,
		containers: make(chan string, max(size, 1)),
		done:       make(chan struct{}),
	}
}

// Start launches the manager goroutine. Calling it again does nothing.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting container pool", slog.Int("size", cap(p.containers)))
		p.wg.Add(1)
		go p.manage()
	})
}

// Stop ends the manager and removes every container still waiting in the pool.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case id := <-p.containers:
				p.remove(id)
			default:
				return
			}
		}
	})
}

// Acquire takes a ready container, blocking until one exists or ctx ends.
// The caller owns the container and must remove it.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// manage creates containers until stopped. The send blocks while the pool is
// full, so there is no polling.
func (p *Pool) manage() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		id, err := p.create(ctx)
		cancel()
		if err != nil {
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			select {
			case <-time.After(p.backoff):
				continue
			case <-p.done:
				return
			}
		}

		select {
		case p.containers <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

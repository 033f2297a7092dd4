package docker

import "time"

// Config holds the sandbox settings.
//
// All languages share one image, so Commands only lists languages whose
// interpreter that image provides. The code is appended as the last argument.
type Config struct {
	Image       string
	Commands    map[string][]string
	MemoryLimit int64 // bytes
	CPULimit    float64
	Timeout     time.Duration
	PoolSize    int
}

// DefaultConfig runs python snippets on python:3.12-alpine with 128 MB of
// memory, half a CPU and a five second limit.
func DefaultConfig() Config {
	return Config{
		Image: "python:3.12-alpine",
		Commands: map[string][]string{
			"python": {"python", "-c"},
		},
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     5 * time.Second,
		PoolSize:    3,
	}
}

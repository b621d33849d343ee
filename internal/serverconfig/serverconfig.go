// Package serverconfig assembles and validates the compute server's
// startup configuration from CLI flag values, validating the whole
// struct once before it is ever applied.
package serverconfig

import (
	"fmt"
	"os"
)

// ServerConfig is the fully-resolved, validated shape of the server's
// CLI surface.
type ServerConfig struct {
	BasePath      string
	Port          int
	WorkerThreads int
	Dir           string
	SSL           bool
	CacheBytes    int64
	WarpThreads   int
}

// Defaults returns the server's out-of-the-box configuration.
func Defaults() ServerConfig {
	return ServerConfig{
		BasePath:      "/gdalcubes/api",
		Port:          1111,
		WorkerThreads: 1,
		Dir:           defaultDir(),
		WarpThreads:   1,
	}
}

func defaultDir() string {
	return os.TempDir() + string(os.PathSeparator) + "gdalcubes"
}

// Validate checks the struct is usable to start a server, validating the
// whole configuration before any of it is applied. SSL is rejected
// outright since the server has no TLS implementation: the flag exists
// for command-line compatibility but any true value is an error.
func (c ServerConfig) Validate() error {
	if c.SSL {
		return fmt.Errorf("invalid-configuration: --ssl is not implemented")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid-configuration: port %d out of range [1,65535]", c.Port)
	}
	if c.WorkerThreads < 1 {
		return fmt.Errorf("invalid-configuration: worker_threads must be at least 1, got %d", c.WorkerThreads)
	}
	if c.WarpThreads < 1 {
		return fmt.Errorf("invalid-configuration: warp threads must be at least 1, got %d", c.WarpThreads)
	}
	if c.Dir == "" {
		return fmt.Errorf("invalid-configuration: dir must not be empty")
	}
	if c.BasePath == "" || c.BasePath[0] != '/' {
		return fmt.Errorf("invalid-configuration: basepath must start with '/', got %q", c.BasePath)
	}
	if c.CacheBytes < 0 {
		return fmt.Errorf("invalid-configuration: cache byte budget must not be negative, got %d", c.CacheBytes)
	}
	return nil
}

// EnsureDirExists creates Dir (and any parents) if it does not already
// exist.
func (c ServerConfig) EnsureDirExists() error {
	return os.MkdirAll(c.Dir, 0o755)
}

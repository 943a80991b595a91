package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/teemow/drivebkup/internal/logging"
)

// googleChunkAlign is the granularity Drive requires for resumable chunks.
const googleChunkAlign = 256 * 1024

// Validate checks all values in cfg and returns every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	size, err := parseSize(cfg.ChunkSize)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	case size%googleChunkAlign != 0:
		errs = append(errs, fmt.Errorf("chunk_size: %d is not a multiple of 256KiB", size))
	}

	if cfg.Backup.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("backup.parallelism: must be at least 1, got %d", cfg.Backup.Parallelism))
	}

	for _, pattern := range cfg.Backup.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("backup.exclude: invalid pattern %q", pattern))
		}
	}

	return errors.Join(errs...)
}

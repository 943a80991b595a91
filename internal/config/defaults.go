package config

import (
	"path/filepath"

	"github.com/teemow/drivebkup/internal/logging"
)

// Default values for configuration options.
const (
	defaultLogLevel    = "info"
	defaultDownloadDir = "."
	defaultChunkSize   = "8MiB"
	defaultParallelism = 4

	ledgerFileName = "ledger.db"
)

// DefaultConfig returns a Config populated with all default values. Logs,
// the upload log and the backup ledger live in the platform data directory.
// There is deliberately no default token file: the caller must name one.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	cfg := &Config{
		LogLevel:    defaultLogLevel,
		DownloadDir: defaultDownloadDir,
		ChunkSize:   defaultChunkSize,
		Backup: BackupConfig{
			Parallelism: defaultParallelism,
		},
	}

	if dataDir != "" {
		cfg.LogDir = dataDir
		cfg.UploadLog = filepath.Join(dataDir, logging.UploadLogFileName)
		cfg.Backup.Ledger = filepath.Join(dataDir, ledgerFileName)
	}

	return cfg
}

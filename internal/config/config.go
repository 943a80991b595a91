// Package config loads drivebkup settings from a TOML file, a .env file,
// environment variables and command-line flags, in that order of precedence
// (later wins).
package config

// Config is the on-disk configuration file layout.
type Config struct {
	TokenFile        string   `toml:"token_file"`
	RegistrationFile string   `toml:"registration_file"`
	Scopes           []string `toml:"scopes"`

	LogDir    string `toml:"log_dir"`
	LogLevel  string `toml:"log_level"`
	UploadLog string `toml:"upload_log"`

	DownloadDir string `toml:"download_dir"`
	// ChunkSize is the resumable upload chunk size, e.g. "8MiB" or "16MB".
	ChunkSize string `toml:"chunk_size"`

	Backup BackupConfig `toml:"backup"`
}

// BackupConfig is the [backup] section.
type BackupConfig struct {
	Ledger      string   `toml:"ledger"`
	Parallelism int      `toml:"parallelism"`
	Exclude     []string `toml:"exclude"`
}

// Resolved is a fully merged and validated configuration ready for use.
// Paths are absolute or empty; ChunkSize is in bytes.
type Resolved struct {
	ConfigPath string

	TokenFile        string
	RegistrationFile string
	Scopes           []string

	LogDir    string
	LogLevel  string
	UploadLog string

	DownloadDir string
	ChunkSize   int64

	Backup BackupConfig
}

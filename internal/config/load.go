package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file on top of the defaults and
// validates the result. Unknown keys are fatal.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// CLIOverrides holds values given as command-line flags. Empty means unset.
type CLIOverrides struct {
	ConfigPath       string
	TokenFile        string
	RegistrationFile string
	LogDir           string
	LogLevel         string
	DownloadDir      string
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// Callers that want .env support call LoadDotEnv before ReadEnvOverrides.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}
	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}
	cfgPath = expandHome(cfgPath)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	apply := func(dst *string, values ...string) {
		for _, v := range values {
			if v != "" {
				*dst = v
			}
		}
	}
	apply(&cfg.TokenFile, env.TokenFile, cli.TokenFile)
	apply(&cfg.RegistrationFile, env.RegistrationFile, cli.RegistrationFile)
	apply(&cfg.LogDir, env.LogDir, cli.LogDir)
	apply(&cfg.LogLevel, env.LogLevel, cli.LogLevel)
	apply(&cfg.DownloadDir, env.DownloadDir, cli.DownloadDir)

	// Overrides may introduce a bad level; re-check the merged result.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	chunk, err := parseSize(cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		ConfigPath: cfgPath,
		Scopes:     cfg.Scopes,
		LogLevel:   cfg.LogLevel,
		ChunkSize:  chunk,
		Backup:     cfg.Backup,
	}

	paths := []struct {
		src string
		dst *string
	}{
		{cfg.TokenFile, &resolved.TokenFile},
		{cfg.RegistrationFile, &resolved.RegistrationFile},
		{cfg.LogDir, &resolved.LogDir},
		{cfg.UploadLog, &resolved.UploadLog},
		{cfg.DownloadDir, &resolved.DownloadDir},
		{cfg.Backup.Ledger, &resolved.Backup.Ledger},
	}
	for _, p := range paths {
		abs, err := absPath(p.src)
		if err != nil {
			return nil, fmt.Errorf("resolving path %s: %w", p.src, err)
		}
		*p.dst = abs
	}

	return resolved, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvTokenFile        = "GOOGLE_DRIVE_CLIENT_TOKEN"
	EnvRegistrationFile = "GOOGLE_DRIVE_CLIENT_REGISTRATION"
	EnvConfig           = "DRIVEBKUP_CONFIG"
	EnvLogDir           = "DRIVEBKUP_LOG_DIR"
	EnvLogLevel         = "DRIVEBKUP_LOG_LEVEL"
	EnvDownloadDir      = "DRIVEBKUP_DOWNLOAD_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath       string // DRIVEBKUP_CONFIG
	TokenFile        string // GOOGLE_DRIVE_CLIENT_TOKEN
	RegistrationFile string // GOOGLE_DRIVE_CLIENT_REGISTRATION
	LogDir           string // DRIVEBKUP_LOG_DIR
	LogLevel         string // DRIVEBKUP_LOG_LEVEL
	DownloadDir      string // DRIVEBKUP_DOWNLOAD_DIR
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:       os.Getenv(EnvConfig),
		TokenFile:        os.Getenv(EnvTokenFile),
		RegistrationFile: os.Getenv(EnvRegistrationFile),
		LogDir:           os.Getenv(EnvLogDir),
		LogLevel:         os.Getenv(EnvLogLevel),
		DownloadDir:      os.Getenv(EnvDownloadDir),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set are left alone. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Precedence(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, filepath.Join(dir, "config", "drivebkup", "config.toml"), `
token_file = "/from/file/token.json"
registration_file = "/from/file/client.json"
log_level = "warn"
`)

	// Default config path, file only.
	res, err := Resolve(EnvOverrides{}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, path, res.ConfigPath)
	assert.Equal(t, "/from/file/token.json", res.TokenFile)
	assert.Equal(t, "warn", res.LogLevel)

	// Environment beats file.
	res, err = Resolve(EnvOverrides{TokenFile: "/from/env/token.json", LogLevel: "error"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env/token.json", res.TokenFile)
	assert.Equal(t, "/from/file/client.json", res.RegistrationFile)
	assert.Equal(t, "error", res.LogLevel)

	// Flags beat environment.
	res, err = Resolve(
		EnvOverrides{TokenFile: "/from/env/token.json"},
		CLIOverrides{TokenFile: "/from/cli/token.json", LogLevel: "debug"},
	)
	require.NoError(t, err)
	assert.Equal(t, "/from/cli/token.json", res.TokenFile)
	assert.Equal(t, "debug", res.LogLevel)
}

func TestResolve_NoTokenFile(t *testing.T) {
	isolate(t)

	res, err := Resolve(EnvOverrides{}, CLIOverrides{})
	require.NoError(t, err)
	assert.Empty(t, res.TokenFile)
	assert.Empty(t, res.RegistrationFile)
	assert.Equal(t, int64(8*1024*1024), res.ChunkSize)
	assert.True(t, filepath.IsAbs(res.DownloadDir))
}

func TestResolve_ConfigPathFromEnvAndFlag(t *testing.T) {
	dir := isolate(t)
	envPath := writeFile(t, filepath.Join(dir, "env.toml"), `token_file = "/env-config/token.json"`)
	cliPath := writeFile(t, filepath.Join(dir, "cli.toml"), `token_file = "/cli-config/token.json"`)

	res, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/env-config/token.json", res.TokenFile)

	res, err = Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, "/cli-config/token.json", res.TokenFile)
}

func TestResolve_ExpandsHome(t *testing.T) {
	dir := isolate(t)

	res, err := Resolve(EnvOverrides{}, CLIOverrides{TokenFile: "~/token.json"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "token.json"), res.TokenFile)
}

func TestResolve_InvalidOverride(t *testing.T) {
	isolate(t)

	_, err := Resolve(EnvOverrides{LogLevel: "chatty"}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, ".env"),
		"DRIVEBKUP_TEST_DOTENV=/from/dotenv\nDRIVEBKUP_TEST_KEEP=from-file\n")

	t.Setenv("DRIVEBKUP_TEST_KEEP", "from-shell")
	t.Cleanup(func() { _ = os.Unsetenv("DRIVEBKUP_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "/from/dotenv", os.Getenv("DRIVEBKUP_TEST_DOTENV"))
	assert.Equal(t, "from-shell", os.Getenv("DRIVEBKUP_TEST_KEEP"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvTokenFile, "/t.json")
	t.Setenv(EnvRegistrationFile, "/r.json")
	t.Setenv(EnvDownloadDir, "/dl")

	env := ReadEnvOverrides()
	assert.Equal(t, "/t.json", env.TokenFile)
	assert.Equal(t, "/r.json", env.RegistrationFile)
	assert.Equal(t, "/dl", env.DownloadDir)
}

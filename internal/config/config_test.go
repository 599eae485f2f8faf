package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "*/5 * * * *", cfg.RefreshCron)
	assert.Equal(t, "classrooms/terms/", cfg.Endpoints.Terms)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "base_url: https://zapisy.example/\nrefresh: \"\"\nrooms:\n  - id: \"25\"\n    name: Sala 25\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://zapisy.example/", cfg.BaseURL)
	assert.Empty(t, cfg.RefreshCron)
	assert.Equal(t, "Europe/Warsaw", cfg.Timezone)
	assert.Equal(t, "X-CSRFToken", cfg.CSRF.Header)
	assert.Equal(t, []RoomConfig{{ID: "25", Name: "Sala 25"}}, cfg.Rooms)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [oops"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBaseURL:  "https://other.example/",
		EnvSession:  "abc123",
		EnvLogLevel: "  ",
		EnvListen:   ":9000",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "https://other.example/", cfg.BaseURL)
	assert.Equal(t, "abc123", cfg.Session)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.Listen)
}

func TestSessionNeverSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Session = "secret-session"
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-session")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Empty(t, back.Session)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROOMCAL_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ROOMCAL_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("ROOMCAL_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.BaseURL = "https://zapisy.example/"
	cfg.Endpoints.Delete = "delete-event/"
	assert.Error(t, cfg.Validate())
}

func TestLocationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Nowhere/Special"
	assert.NotNil(t, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

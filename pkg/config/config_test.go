package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 24*time.Hour, cfg.Focus.Cooldown)
	assert.Equal(t, 5*time.Second, cfg.Database.StoreTimeout)
	assert.Equal(t, 9, cfg.Scoring.MaxImages)
	assert.True(t, cfg.Leaderboard.CacheEnabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FOCUS_COOLDOWN", "90m")
	t.Setenv("STORE_TIMEOUT", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CORS_MAX_AGE", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Focus.Cooldown)
	assert.Equal(t, 5*time.Second, cfg.Database.StoreTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.CORS.MaxAge)
}

func TestDatabaseURLEscapesCredentials(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "tasks", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/tasks?sslmode=disable", cfg.URL())
	assert.Equal(t, "host=db port=5432 user=app password=p@ss dbname=tasks sslmode=disable", cfg.DSN())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quarrygate.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[engine]
frame_interval = "8ms"
max_fixed_steps = 3

[scene]
initial = "level2"

[inspector]
enabled = true
request_timeout = "500ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8*time.Millisecond, cfg.Engine.FrameInterval)
	assert.Equal(t, 3, cfg.Engine.MaxFixedSteps)
	assert.Equal(t, "level2", cfg.Scene.Initial)
	assert.Equal(t, "dir", cfg.Scene.Store)
	assert.Equal(t, "assets/scenes", cfg.Scene.Dir)
	assert.True(t, cfg.Inspector.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Inspector.RequestTimeout)
	assert.Equal(t, "127.0.0.1:7070", cfg.Inspector.BindAddress)
	assert.Equal(t, 256, cfg.Logging.BufferSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "[engine\n"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, `
[engine]
frame_interval = "0s"
max_fixed_steps = -1
[scene]
store = "redis"
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "engine.frame_interval")
	assert.ErrorContains(t, err, "engine.max_fixed_steps")
	assert.ErrorContains(t, err, "scene.store")
}

func TestValidatePostgresNeedsDSN(t *testing.T) {
	cfg := defaults()
	cfg.Scene.Store = "postgres"
	cfg.Database.DSN = ""
	assert.ErrorContains(t, cfg.Validate(), "database.dsn")

	cfg.Database.DSN = "postgres://localhost/x"
	assert.NoError(t, cfg.Validate())
}

func TestPathFromEnvironment(t *testing.T) {
	t.Setenv("QUARRYGATE_CONFIG", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("QUARRYGATE_CONFIG", "/etc/qg.toml")
	assert.Equal(t, "/etc/qg.toml", Path())
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, cfg.Engine.FrameInterval)
	assert.Equal(t, "config/systems.json", cfg.Engine.SystemsFile)
	assert.Equal(t, 8, cfg.Engine.MaxFixedSteps)
}

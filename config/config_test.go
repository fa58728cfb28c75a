package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, "gorm", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Game.RoundDuration)
	assert.Equal(t, 3, cfg.Game.LastRoundIndex)
	assert.Equal(t, 6*time.Hour, cfg.Redis.SnapshotTTL)
	assert.Equal(t, 30*time.Second, cfg.Server.HeartbeatInterval)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":9000"
database:
  driver: memory
game:
  round_duration: 45
  words_file: /tmp/words.csv
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("HAT_GAME_WORDS_COUNT", "60")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTPAddress)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 45, cfg.Game.RoundDuration)
	assert.Equal(t, "/tmp/words.csv", cfg.Game.WordsFile)
	assert.Equal(t, 60, cfg.Game.WordsCount)
}

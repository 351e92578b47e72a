package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, "kick", cfg.Backpressure)
	assert.Equal(t, 64, cfg.Client.MaxPendingCandidates)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Client.ICEServers)
}

func TestLoadFileReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
port: 9090
join_rate_limit: 2
client:
  server_url: ws://hub:9090/api/ws/signal
  max_pending_candidates: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2, cfg.JoinRateLimit)
	assert.Equal(t, "ws://hub:9090/api/ws/signal", cfg.Client.ServerURL)
	assert.Equal(t, 8, cfg.Client.MaxPendingCandidates)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HUDDLE_PORT", "7000")
	t.Setenv("HUDDLE_CLIENT_SERVER_URL", "ws://env/api/ws/signal")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "ws://env/api/ws/signal", cfg.Client.ServerURL)
}

func TestRejectsPingNotShorterThanPong(t *testing.T) {
	t.Setenv("HUDDLE_PING_PERIOD", "90s")

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "ping_period")
}

func TestLoadFileMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [8080\nmode: debug\n"), 0o600))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "failed to read config")
}

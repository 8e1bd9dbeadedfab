package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	var c Config
	c.applyDefaults()

	assert.Equal(t, 3, c.Ring.Size)
	assert.Equal(t, 1<<20, c.Ring.FilterBits)
	assert.Equal(t, 8, c.Ring.K)
	assert.Equal(t, 32, c.Ring.SliceBits)
	assert.Equal(t, 3600, c.Ring.RotationInterval)
	assert.Equal(t, 1024, c.Queue.Capacity)
	assert.Equal(t, "zen.spamhaus.org", c.Oracle.DNSBLZone)
	assert.Equal(t, "stream", c.Server.Transport)
	assert.Equal(t, 64, c.Server.MaxWorkers)
	assert.Equal(t, 9090, c.Admin.RPCPort)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{Ring: RingConfig{Size: 5}, Server: ServerConfig{MaxWorkers: 16}}
	c.applyDefaults()

	assert.Equal(t, 5, c.Ring.Size)
	assert.Equal(t, 16, c.Server.MaxWorkers)
	// Untouched fields still get their default.
	assert.Equal(t, 8, c.Ring.K)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GREYD_RING_SIZE", "4")
	t.Setenv("GREYD_ORACLE_ENABLED", "true")
	t.Setenv("GREYD_TRANSPORT", "datagram")
	t.Setenv("GREYD_MAX_WORKERS", "128")

	var c Config
	c.applyEnvOverrides()

	assert.Equal(t, 4, c.Ring.Size)
	assert.True(t, c.Oracle.Enabled)
	assert.Equal(t, "datagram", c.Server.Transport)
	assert.Equal(t, 128, c.Server.MaxWorkers)
}

func TestLoadConfigFromYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "greyd-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(`
ring:
  ring_size: 6
server:
  transport: datagram
  listen_port: 7000
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadConfig(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Ring.Size)
	assert.Equal(t, "datagram", cfg.Server.Transport)
	assert.Equal(t, 7000, cfg.Server.ListenPort)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

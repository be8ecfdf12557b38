package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersHas(t *testing.T) {
	p := Parameters{"a": "1", "b": ""}
	assert.True(t, p.Has("a"))
	assert.True(t, p.Has("a", "b"), "empty values still count as present")
	assert.False(t, p.Has("a", "c"))
}

func TestParametersGetUint32(t *testing.T) {
	p := Parameters{"port": "8080", "neg": "-1", "word": "eighty", "big": "4294967296"}

	n, err := p.GetUint32("port")
	require.NoError(t, err)
	assert.Equal(t, uint32(8080), n)

	_, err = p.GetUint32("neg")
	assert.Error(t, err)
	_, err = p.GetUint32("word")
	assert.Error(t, err)
	_, err = p.GetUint32("big")
	assert.Error(t, err)
	_, err = p.GetUint32("absent")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"stream_listener:\n  enabled: true\n  gateway_ports: true\nstream_forwarder:\n  enabled: false\n"), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, c.StreamListener.Enabled)
	assert.True(t, c.StreamListener.GatewayPorts)
	assert.False(t, c.StreamForwarder.Enabled)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("stream_listener: ["), 0o600))
	_, err = LoadConfig(bad)
	require.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FUNNEL_TEST_INT", "42")
	t.Setenv("FUNNEL_TEST_DUR", "1500ms")
	assert.Equal(t, 42, EnvInt("TEST_INT", 7))
	assert.Equal(t, 7, EnvInt("TEST_INT_UNSET", 7))
	assert.Equal(t, 1500*time.Millisecond, EnvDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, EnvDuration("TEST_DUR_UNSET", time.Second))
}

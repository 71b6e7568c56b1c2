package runtime_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/welcome-agent/internal/runtime"
)

const sampleYAML = `
runtime:
  event_buffer_size: 512

routing:
  - source: webhook
    type: notice
    handlers: [welcome]
  - type: message
    meta_key: group_id
    meta_value: ${TEST_ADMIN_GROUP}
    handlers: [command]
`

func TestLoadConfigBytes(t *testing.T) {
	t.Setenv("TEST_ADMIN_GROUP", "123456")

	cfg, err := runtime.LoadConfigBytes([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Runtime.EventBufferSize)
	require.Len(t, cfg.Routing, 2)
	assert.Equal(t, "webhook", cfg.Routing[0].Source)
	assert.Equal(t, []string{"welcome"}, cfg.Routing[0].Handlers)
	assert.Equal(t, "123456", cfg.Routing[1].MetaValue)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := runtime.LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Routing, 2)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := runtime.LoadConfig("/nonexistent/path/routing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := runtime.LoadConfigBytes([]byte(`{ invalid yaml :`))
	require.Error(t, err)
}

func TestRoutingConfig_Apply(t *testing.T) {
	def := runtime.DefaultConfig()

	cfg := &runtime.RoutingConfig{Runtime: runtime.RuntimeSettings{EventBufferSize: 1024}}
	assert.Equal(t, 1024, cfg.Apply(def).EventBufferSize)

	empty := &runtime.RoutingConfig{}
	assert.Equal(t, def.EventBufferSize, empty.Apply(def).EventBufferSize)
}

func TestEnvVarExpansion_MissingVarIsEmpty(t *testing.T) {
	os.Unsetenv("UNSET_VAR_XYZ")
	cfg, err := runtime.LoadConfigBytes([]byte(`
routing:
  - meta_value: ${UNSET_VAR_XYZ}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Routing, 1)
	assert.Equal(t, "", cfg.Routing[0].MetaValue)
}

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/staticd/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	raw, err := generateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "staticd Configuration", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, section := range []string{"server", "origin", "logging", "telemetry", "metrics", "api"} {
		assert.Contains(t, props, section)
	}

	server := props["server"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "string", server["admission_timeout"].(map[string]any)["type"])
	assert.Equal(t, "string", server["read_buffer_size"].(map[string]any)["type"])
}

func TestConfigWarnings(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Server.StaticDir = filepath.Join(t.TempDir(), "missing")
	cfg.Metrics.Enabled = true

	warnings := configWarnings(cfg)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "does not exist")

	cfg.Server.StaticDir = t.TempDir()
	assert.Empty(t, configWarnings(cfg))

	off := false
	cfg.Metrics.Enabled = false
	cfg.API.Enabled = &off
	warnings = configWarnings(cfg)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "cannot be observed")
}

func TestConfigWarnings_FileAsStaticDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(file, []byte("hi"), 0o644))

	cfg := config.GetDefaultConfig()
	cfg.Server.StaticDir = file
	warnings := configWarnings(cfg)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "is not a directory")
}

func TestPrintValidation(t *testing.T) {
	cfg := config.GetDefaultConfig()

	var buf bytes.Buffer
	printValidation(&buf, "/etc/staticd/config.yaml", cfg, []string{"something odd"})

	out := buf.String()
	assert.Contains(t, out, "Configuration file: /etc/staticd/config.yaml")
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "  - something odd")
	assert.Contains(t, out, "127.0.0.1:8080")
	assert.Contains(t, out, "dir:static")
	assert.Contains(t, out, "enabled")
}

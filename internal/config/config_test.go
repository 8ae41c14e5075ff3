package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".projecthub/projecthub.db", cfg.Database.Path)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.False(t, cfg.Features.ArchiveCompletedProjects)
	assert.True(t, cfg.Features.DetectTimeConflicts)
	assert.True(t, cfg.Features.Notifications)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
features:
  archive_completed_projects: true
log:
  format: json
notifications:
  webhooks:
    - url: https://hooks.example.com/projecthub
      types: [task.blocked]
`))

	require.NoError(t, err)
	assert.True(t, cfg.Features.ArchiveCompletedProjects)
	assert.True(t, cfg.Features.DetectDuplicateTasks)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Notifications.Webhooks, 1)
	assert.Equal(t, []string{"task.blocked"}, cfg.Notifications.Webhooks[0].Types)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"relative base path", "server:\n  base_path: v1\n"},
		{"empty db path", "database:\n  path: \"\"\n"},
		{"relative webhook", "notifications:\n  webhooks:\n    - url: /hook\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := Path(t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 0.0.0.0:9000\n"), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "pdf"), cfg.Storage.UploadDir)
	assert.Equal(t, filepath.Join(dataDir, "instance"), cfg.Storage.InstanceDir)
	assert.Equal(t, 72, cfg.Render.DPI)
	assert.Equal(t, 2, cfg.Render.Upscale)
	assert.Equal(t, "tesseract", cfg.OCR.Engine)
	assert.Equal(t, []string{"eng"}, cfg.OCR.Languages)
	assert.True(t, cfg.Janitor.Enabled)
	assert.Equal(t, "@hourly", cfg.Janitor.Schedule)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_ConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "custom.yaml")
	content := `server:
  port: 9090
ocr:
  engine: none
storage:
  upload_dir: /srv/drawings
render:
  upscale: 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath, dataDir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "none", cfg.OCR.Engine)
	assert.Equal(t, "/srv/drawings", cfg.Storage.UploadDir)
	assert.Equal(t, filepath.Join(dataDir, "instance"), cfg.Storage.InstanceDir)
	assert.Equal(t, 3, cfg.Render.Upscale)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("TAKEOFF_SERVER_PORT", "")
	t.Setenv("PORT", "7070")
	t.Setenv("TESSERACT_LANGS", "eng+deu")

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCR.Languages)
}

func TestLoad_InvalidEngine(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("ocr:\n  engine: paddle\n"), 0644))

	_, err := Load(configPath, dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr.engine")
}

package app

import (
	"testing"

	"github.com/gmsas95/takeoff/internal/config"
	"github.com/gmsas95/takeoff/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.OCR.Engine = "none"
	return cfg
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		version string
		janitor bool
	}{
		{name: "with janitor", version: "1.0.0", janitor: true},
		{name: "without janitor", version: "dev", janitor: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Janitor.Enabled = tt.janitor

			app, err := New(cfg, zap.NewNop(), tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.version, app.Version)
			assert.NotNil(t, app.Server)
			assert.NotNil(t, app.Service)
			assert.Equal(t, tt.janitor, app.Janitor != nil)
			assert.DirExists(t, cfg.Storage.UploadDir)
			assert.DirExists(t, cfg.Storage.InstanceDir)
		})
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Janitor.Schedule = "every now and then"

	_, err := New(cfg, zap.NewNop(), "test")
	assert.Error(t, err)
}

func TestNewRecognizer(t *testing.T) {
	cfg := testConfig(t)

	assert.IsType(t, &ocr.Static{}, newRecognizer(cfg, zap.NewNop()))

	cfg.OCR.Engine = "tesseract"
	cfg.OCR.TesseractPath = "/nonexistent/tesseract"
	assert.IsType(t, &ocr.Guard{}, newRecognizer(cfg, zap.NewNop()))

	cfg.OCR.Engine = "gosseract"
	assert.IsType(t, &ocr.Guard{}, newRecognizer(cfg, zap.NewNop()))
}

func TestSweepEmpty(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := testConfig(t)
		cfg.Janitor.Enabled = enabled

		app, err := New(cfg, zap.NewNop(), "test")
		require.NoError(t, err)

		removed, err := app.Sweep()
		require.NoError(t, err)
		assert.Zero(t, removed)
	}
}

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TesseractCLI runs the tesseract binary on a temporary PNG.
type TesseractCLI struct {
	binaryPath string
	languages  []string
	psm        int
	timeout    time.Duration
	logger     *zap.Logger
}

// EngineConfig holds the options shared by both tesseract engines.
type EngineConfig struct {
	BinaryPath string
	Languages  []string
	PSM        int
	Timeout    time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.BinaryPath == "" {
		c.BinaryPath = "tesseract"
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"eng"}
	}
	if c.PSM <= 0 {
		c.PSM = 6 // single uniform block of text
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// NewTesseractCLI creates a tesseract CLI recognizer
func NewTesseractCLI(cfg EngineConfig, logger *zap.Logger) *TesseractCLI {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TesseractCLI{
		binaryPath: cfg.BinaryPath,
		languages:  cfg.Languages,
		psm:        cfg.PSM,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// IsAvailable checks if tesseract is installed
func (t *TesseractCLI) IsAvailable() bool {
	_, err := exec.LookPath(t.binaryPath)
	return err == nil
}

func (t *TesseractCLI) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "takeoff-ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("create OCR input: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write OCR input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close OCR input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		tmp.Name(),
		"stdout",
		"-l", strings.Join(t.languages, "+"),
		"--psm", strconv.Itoa(t.psm),
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binaryPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tesseract timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("tesseract failed: %w (output: %s)", err, stderr.String())
	}

	lines := SplitLines(stdout.String())
	t.logger.Debug("Tesseract finished", zap.Int("lines", len(lines)))
	return lines, nil
}

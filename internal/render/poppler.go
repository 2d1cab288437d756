package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Poppler renders with the pdftoppm and pdftocairo command line tools.
type Poppler struct {
	pdftoppm   string
	pdftocairo string
	dpi        int
	timeout    time.Duration
	logger     *zap.Logger
}

// PopplerConfig holds the tool paths and limits of a Poppler renderer.
type PopplerConfig struct {
	PdftoppmPath   string
	PdftocairoPath string
	DPI            int
	Timeout        time.Duration
}

// NewPoppler creates a Poppler renderer
func NewPoppler(cfg PopplerConfig, logger *zap.Logger) *Poppler {
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.PdftocairoPath == "" {
		cfg.PdftocairoPath = "pdftocairo"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = NativeDPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poppler{
		pdftoppm:   cfg.PdftoppmPath,
		pdftocairo: cfg.PdftocairoPath,
		dpi:        cfg.DPI,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// IsAvailable checks if both poppler tools are installed
func (p *Poppler) IsAvailable() bool {
	if _, err := exec.LookPath(p.pdftoppm); err != nil {
		return false
	}
	_, err := exec.LookPath(p.pdftocairo)
	return err == nil
}

// RenderPage converts one page to SVG on stdout.
func (p *Poppler) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	pg := strconv.Itoa(page)
	args := []string{"-svg", "-f", pg, "-l", pg, path, "-"}

	out, err := p.run(ctx, p.pdftocairo, args)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RenderRegion crops the page while rasterizing so only the region is drawn.
func (p *Poppler) RenderRegion(ctx context.Context, path string, page int, r Region) (image.Image, error) {
	crop := PixelRect(r, p.dpi).Intersect(image.Rect(0, 0, math.MaxInt32, math.MaxInt32))
	if crop.Empty() {
		return nil, fmt.Errorf("region %v is empty at %d dpi", r, p.dpi)
	}

	pg := strconv.Itoa(page)
	args := []string{
		"-png",
		"-r", strconv.Itoa(p.dpi),
		"-f", pg, "-l", pg,
		"-x", strconv.Itoa(crop.Min.X),
		"-y", strconv.Itoa(crop.Min.Y),
		"-W", strconv.Itoa(crop.Dx()),
		"-H", strconv.Itoa(crop.Dy()),
		"-singlefile",
		path,
	}

	out, err := p.run(ctx, p.pdftoppm, args)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode pdftoppm output: %w", err)
	}
	return img, nil
}

func (p *Poppler) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", bin, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w (output: %s)", bin, err, stderr.String())
	}
	p.logger.Debug("Rendered",
		zap.String("tool", bin),
		zap.Strings("args", args),
		zap.Duration("duration", time.Since(start)),
	)
	return stdout.Bytes(), nil
}

// PixelRect maps a page-space region to the pixel grid at dpi. Fractional
// edges are rounded outward so the whole region is covered.
func PixelRect(r Region, dpi int) image.Rectangle {
	scale := float64(dpi) / NativeDPI
	return image.Rect(
		int(math.Floor(r.X*scale)),
		int(math.Floor(r.Y*scale)),
		int(math.Ceil((r.X+r.Width)*scale)),
		int(math.Ceil((r.Y+r.Height)*scale)),
	)
}

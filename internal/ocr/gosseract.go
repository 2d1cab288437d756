package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract recognizes text in-process through libtesseract.
type Gosseract struct {
	languages     []string
	psm           int
	clientFactory func() *gosseract.Client
}

// NewGosseract creates an in-process recognizer. BinaryPath and Timeout of
// cfg are ignored.
func NewGosseract(cfg EngineConfig) *Gosseract {
	cfg = cfg.withDefaults()
	return &Gosseract{
		languages:     cfg.Languages,
		psm:           cfg.PSM,
		clientFactory: gosseract.NewClient,
	}
}

func (g *Gosseract) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	c := g.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(g.languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(g.psm)); err != nil {
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	return SplitLines(text), nil
}

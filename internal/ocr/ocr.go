// Package ocr recognizes text in raster crops of extracted line items.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// Recognizer returns the text lines found in img, top to bottom. An image
// without text yields an empty slice and no error.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]string, error)
}

// Static always answers with the same lines.
type Static struct {
	Lines []string
	Err   error
}

func (s *Static) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]string, len(s.Lines))
	copy(out, s.Lines)
	return out, nil
}

// SplitLines trims each line of text and drops blank ones.
func SplitLines(text string) []string {
	lines := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

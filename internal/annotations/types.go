// Package annotations is the durable document -> page -> line item store.
//
// Each document owns one directory holding extracted_data.json and an images/
// subdirectory. All mutations of a document run under that document's lock so
// concurrent requests against one drawing are linearized.
package annotations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rect is a rectangle in page coordinate space (page-native units).
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Validate rejects non-finite values and non-positive extents.
func (r Rect) Validate() error {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("coordinates must be finite numbers")
		}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	return nil
}

// Metadata is the fixed-schema measurement record of a line item. A nil field
// is unset; empty strings never survive Normalize.
type Metadata struct {
	Length    *string `json:"lengthField" yaml:"lengthField"`
	Breadth   *string `json:"breadthField" yaml:"breadthField"`
	Height    *string `json:"heightField" yaml:"heightField"`
	PaintCost *string `json:"paintCostField" yaml:"paintCostField"`
	Note      *string `json:"noteField" yaml:"noteField"`
}

// MetadataFields lists the wire names of the metadata fields in schema order.
var MetadataFields = []string{"lengthField", "breadthField", "heightField", "paintCostField", "noteField"}

// Normalize returns a copy with empty strings replaced by unset.
func (m Metadata) Normalize() Metadata {
	return Metadata{
		Length:    normalizeField(m.Length),
		Breadth:   normalizeField(m.Breadth),
		Height:    normalizeField(m.Height),
		PaintCost: normalizeField(m.PaintCost),
		Note:      normalizeField(m.Note),
	}
}

// IsUnset reports whether every field is unset.
func (m Metadata) IsUnset() bool {
	n := m.Normalize()
	return n.Length == nil && n.Breadth == nil && n.Height == nil && n.PaintCost == nil && n.Note == nil
}

func normalizeField(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	s := *v
	return &s
}

// UnmarshalJSON accepts legacy records: a missing or empty object, empty
// strings, and non-string scalars written by older clients.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	targets := map[string]**string{
		"lengthField":    &m.Length,
		"breadthField":   &m.Breadth,
		"heightField":    &m.Height,
		"paintCostField": &m.PaintCost,
		"noteField":      &m.Note,
	}
	for key, dst := range targets {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("metadata %s: %w", key, err)
		}
		*dst = s
	}

	*m = m.Normalize()
	return nil
}

func scalarString(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return nil, fmt.Errorf("expected a scalar, got %s", trimmed)
	}
	s := string(trimmed)
	return &s, nil
}

// LineItem is one selected region on one page.
type LineItem struct {
	Number      int      `json:"line_item" yaml:"line_item"`
	Coordinates Rect     `json:"coordinates" yaml:"coordinates"`
	ImageRef    string   `json:"img_path" yaml:"img_path"`
	Metadata    Metadata `json:"metadata" yaml:"metadata"`
}

// PageKey formats the record key of a 1-based page number.
func PageKey(page int) string {
	return "Page " + strconv.Itoa(page)
}

// ParsePageKey is the inverse of PageKey.
func ParsePageKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, "Page ")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// FormatCoord renders a coordinate the way extracted image names have always
// spelled them: integral values keep a trailing ".0" (10.0, 12.5, 1e-05).
func FormatCoord(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ImageName is the deterministic base filename of an extraction.
func ImageName(page int, r Rect) string {
	return fmt.Sprintf("extracted_page%d_%s_%s.png", page, FormatCoord(r.X), FormatCoord(r.Y))
}

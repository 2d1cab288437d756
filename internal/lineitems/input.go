package lineitems

import (
	"encoding/json"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/gmsas95/takeoff/internal/annotations"
	apperrors "github.com/gmsas95/takeoff/internal/errors"
)

// number coerces a JSON number or numeric string to a finite float64.
func number(field string, v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, apperrors.Invalid("Invalid coordinates: %s is missing", field)
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, apperrors.Invalid("Invalid coordinates: %s is not a number", field)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, apperrors.Invalid("Invalid coordinates: %s is not a number", field)
		}
		f = parsed
	default:
		return 0, apperrors.Invalid("Invalid coordinates: %s has type %T", field, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperrors.Invalid("Invalid coordinates: %s must be finite", field)
	}
	return f, nil
}

// RectFromValues builds a page-space rectangle from loosely typed request
// values. Width and height must be positive.
func RectFromValues(x, y, width, height any) (annotations.Rect, error) {
	var r annotations.Rect
	var err error
	if r.X, err = number("x", x); err != nil {
		return r, err
	}
	if r.Y, err = number("y", y); err != nil {
		return r, err
	}
	if r.Width, err = number("width", width); err != nil {
		return r, err
	}
	if r.Height, err = number("height", height); err != nil {
		return r, err
	}
	if err := r.Validate(); err != nil {
		return r, apperrors.Invalid("Invalid coordinates: %v", err)
	}
	return r, nil
}

// CropFromValues builds a pixel rectangle of a stored raster. Values are
// truncated toward zero.
func CropFromValues(x, y, width, height any) (image.Rectangle, error) {
	vals := make([]int, 4)
	for i, f := range []struct {
		name string
		v    any
	}{{"x", x}, {"y", y}, {"width", width}, {"height", height}} {
		n, err := number(f.name, f.v)
		if err != nil {
			return image.Rectangle{}, err
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return image.Rectangle{}, apperrors.Invalid("Invalid coordinates: %s out of range", f.name)
		}
		vals[i] = int(n)
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return image.Rectangle{}, apperrors.Invalid("Invalid coordinates: width and height must be positive")
	}
	return image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]), nil
}

// MetadataFromValues maps the five wire fields onto Metadata. Missing keys and
// empty strings become unset; numbers are kept as their decimal text.
func MetadataFromValues(values map[string]any) (annotations.Metadata, error) {
	var md annotations.Metadata
	targets := map[string]**string{
		"lengthField":    &md.Length,
		"breadthField":   &md.Breadth,
		"heightField":    &md.Height,
		"paintCostField": &md.PaintCost,
		"noteField":      &md.Note,
	}
	for key, dst := range targets {
		v, ok := values[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			s = t.String()
		case bool:
			s = strconv.FormatBool(t)
		default:
			return md, apperrors.Invalid("metadata field %s must be text, got %T", key, v)
		}
		*dst = &s
	}
	return md.Normalize(), nil
}

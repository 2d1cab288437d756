package annotations

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFormatCoord(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{10, "10.0"},
		{12.5, "12.5"},
		{0, "0.0"},
		{-3, "-3.0"},
		{100.25, "100.25"},
		{0.00001, "1e-05"},
		{1e16, "1e+16"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCoord(tt.in))
		})
	}
}

func TestImageName(t *testing.T) {
	name := ImageName(1, Rect{X: 10, Y: 20, Width: 100, Height: 50})
	assert.Equal(t, "extracted_page1_10.0_20.0.png", name)
}

func TestPageKey(t *testing.T) {
	assert.Equal(t, "Page 3", PageKey(3))

	n, ok := ParsePageKey("Page 12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"Page", "Page 0", "page 1", "Page x", "Sheet 1"} {
		_, ok := ParsePageKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestRectValidate(t *testing.T) {
	assert.NoError(t, Rect{X: 0, Y: 0, Width: 1, Height: 1}.Validate())
	assert.Error(t, Rect{Width: 0, Height: 1}.Validate())
	assert.Error(t, Rect{Width: 1, Height: -1}.Validate())
	assert.Error(t, Rect{X: math.NaN(), Width: 1, Height: 1}.Validate())
	assert.Error(t, Rect{Width: math.Inf(1), Height: 1}.Validate())
}

func TestMetadataNormalize(t *testing.T) {
	md := Metadata{Length: strPtr("3.5"), Breadth: strPtr(""), Note: strPtr("north wall")}.Normalize()

	require.NotNil(t, md.Length)
	assert.Equal(t, "3.5", *md.Length)
	assert.Nil(t, md.Breadth)
	assert.Nil(t, md.Height)
	assert.Equal(t, "north wall", *md.Note)
	assert.False(t, md.IsUnset())

	assert.True(t, Metadata{Height: strPtr("")}.IsUnset())
}

func TestMetadataUnmarshalLegacy(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Metadata
	}{
		{"null", `null`, Metadata{}},
		{"empty object", `{}`, Metadata{}},
		{"empty strings", `{"lengthField":"","noteField":""}`, Metadata{}},
		{"number", `{"lengthField":12.5}`, Metadata{Length: strPtr("12.5")}},
		{"unknown keys", `{"colour":"red","heightField":"2"}`, Metadata{Height: strPtr("2")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var md Metadata
			require.NoError(t, json.Unmarshal([]byte(tt.in), &md))
			assert.Equal(t, tt.want, md)
		})
	}

	var md Metadata
	assert.Error(t, json.Unmarshal([]byte(`{"lengthField":{"a":1}}`), &md))
}

func TestMetadataMarshalUnset(t *testing.T) {
	data, err := json.Marshal(Metadata{PaintCost: strPtr("40")})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"lengthField":null,"breadthField":null,"heightField":null,"paintCostField":"40","noteField":null}`,
		string(data))
}

package annotations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTableMarshalYAML(t *testing.T) {
	rec := NewRecord("plan")
	rec.Append(2, LineItem{ImageRef: "b.png", Coordinates: Rect{X: 1, Y: 2, Width: 3, Height: 4}})
	rec.SetMetadata(2, 1, Metadata{Note: strPtr("door")})
	rec.Append(10, LineItem{ImageRef: "j.png"})

	out, err := yaml.Marshal(NewTable(rec, 2))
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "plan:\n"))
	assert.Contains(t, s, "Page 1: null")
	assert.Contains(t, s, "img_path: b.png")
	assert.Contains(t, s, "noteField: door")
	assert.Less(t, strings.Index(s, "Page 2:"), strings.Index(s, "Page 10:"))

	var decoded map[string]map[string][]LineItem
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Nil(t, decoded["plan"]["Page 1"])
	require.Len(t, decoded["plan"]["Page 2"], 1)
	assert.Equal(t, Rect{X: 1, Y: 2, Width: 3, Height: 4}, decoded["plan"]["Page 2"][0].Coordinates)
}

package annotations

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	return img
}

func TestStoreLoadMissing(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Load("plan")
	require.NoError(t, err)
	assert.Equal(t, "plan", rec.Document)
	assert.Empty(t, rec.Pages)
}

func TestStoreRejectsBadNames(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("../etc")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.ImagePath("plan", "../../extracted_data.json")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStoreSaveWritesIndentedRecord(t *testing.T) {
	s := newTestStore(t)
	rec := NewRecord("plan")
	rec.Append(1, LineItem{ImageRef: "a.png", Coordinates: Rect{X: 1, Y: 2, Width: 3, Height: 4}})

	require.NoError(t, s.Save("plan", rec))

	data, err := os.ReadFile(filepath.Join(s.Root(), "plan", recordFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "{\n    \"plan\": {\n        \"Page 1\": [")

	loaded, err := s.Load("plan")
	require.NoError(t, err)
	assert.Equal(t, rec.Pages, loaded.Pages)

	// No temp files survive a successful save.
	entries, err := os.ReadDir(filepath.Join(s.Root(), "plan"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreAddExtraction(t *testing.T) {
	s := newTestStore(t)
	rect := Rect{X: 10, Y: 20, Width: 100, Height: 50}

	item, err := s.AddExtraction("plan", 1, rect, testImage())
	require.NoError(t, err)
	assert.Equal(t, 1, item.Number)
	assert.Equal(t, "extracted_page1_10.0_20.0.png", item.ImageRef)
	assert.Equal(t, rect, item.Coordinates)

	path, err := s.ImagePath("plan", item.ImageRef)
	require.NoError(t, err)
	assert.FileExists(t, path)

	img, err := s.OpenImage("plan", item.ImageRef)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	got, err := s.FindItem("plan", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestStoreAddExtractionCollisionSuffix(t *testing.T) {
	s := newTestStore(t)
	rect := Rect{X: 10, Y: 20, Width: 100, Height: 50}

	first, err := s.AddExtraction("plan", 1, rect, testImage())
	require.NoError(t, err)
	second, err := s.AddExtraction("plan", 1, rect, testImage())
	require.NoError(t, err)
	third, err := s.AddExtraction("plan", 1, rect, testImage())
	require.NoError(t, err)

	assert.Equal(t, "extracted_page1_10.0_20.0.png", first.ImageRef)
	assert.Equal(t, "extracted_page1_10.0_20.0_2.png", second.ImageRef)
	assert.Equal(t, "extracted_page1_10.0_20.0_3.png", third.ImageRef)
	assert.Equal(t, []int{1, 2, 3}, []int{first.Number, second.Number, third.Number})
}

func TestStoreFirstExtraction(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddExtraction("plan", 1, Rect{X: 10, Y: 20, Width: 100, Height: 50}, testImage())
	require.NoError(t, err)
	_, err = s.AddExtraction("plan", 1, Rect{X: 200, Y: 20, Width: 40, Height: 40}, testImage())
	require.NoError(t, err)
	_, err = s.AddExtraction("plan", 3, Rect{X: 5, Y: 5, Width: 10, Height: 10}, testImage())
	require.NoError(t, err)

	require.NoError(t, s.UpdateMetadata("plan", 1, 2, Metadata{Length: strPtr("4.2"), PaintCost: strPtr("120")}))

	_, err = s.RemoveItem("plan", 1, 1)
	require.NoError(t, err)

	rec, err := s.Load("plan")
	require.NoError(t, err)
	require.Len(t, rec.Items(1), 1)
	remaining := rec.Items(1)[0]
	assert.Equal(t, 2, remaining.Number)
	assert.Equal(t, "4.2", *remaining.Metadata.Length)
	assert.Equal(t, "120", *remaining.Metadata.PaintCost)
	assert.Nil(t, remaining.Metadata.Note)

	table := NewTable(rec, 3)
	assert.Nil(t, table.Pages[2])
	assert.Len(t, table.Pages[3], 1)
}

func TestStoreRemoveItem(t *testing.T) {
	s := newTestStore(t)
	item, err := s.AddExtraction("plan", 2, Rect{X: 1, Y: 1, Width: 5, Height: 5}, testImage())
	require.NoError(t, err)
	path, err := s.ImagePath("plan", item.ImageRef)
	require.NoError(t, err)

	removed, err := s.RemoveItem("plan", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, item.ImageRef, removed.ImageRef)
	assert.NoFileExists(t, path)

	rec, err := s.Load("plan")
	require.NoError(t, err)
	assert.NotContains(t, rec.Pages, 2)
}

func TestStoreRemoveItemMissingImage(t *testing.T) {
	s := newTestStore(t)
	item, err := s.AddExtraction("plan", 1, Rect{X: 1, Y: 1, Width: 5, Height: 5}, testImage())
	require.NoError(t, err)
	path, err := s.ImagePath("plan", item.ImageRef)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = s.RemoveItem("plan", 1, 1)
	require.NoError(t, err)
}

func TestStoreFlatImageLayout(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.Dir("plan")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))

	ref := "extracted_page1_10_20.png"
	rec := NewRecord("plan")
	rec.Append(1, LineItem{Coordinates: Rect{X: 10, Y: 20, Width: 4, Height: 4}, ImageRef: ref})
	require.NoError(t, s.Save("plan", rec))
	require.NoError(t, writePNG(filepath.Join(dir, ref), testImage()))

	path, err := s.ImagePath("plan", ref)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ref), path)

	img, err := s.OpenImage("plan", ref)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	// Only PNGs fall back; the record file stays out of reach.
	path, err = s.ImagePath("plan", recordFile)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, imagesDir, recordFile), path)

	removed, err := s.SweepOrphans("plan")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.FileExists(t, filepath.Join(dir, ref))

	_, err = s.RemoveItem("plan", 1, 1)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, ref))
}

func TestStoreRemoveItemNotFoundHasNoSideEffects(t *testing.T) {
	s := newTestStore(t)
	item, err := s.AddExtraction("plan", 1, Rect{X: 1, Y: 1, Width: 5, Height: 5}, testImage())
	require.NoError(t, err)

	_, err = s.RemoveItem("plan", 1, 7)
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)

	_, err = s.RemoveItem("plan", 9, 1)
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)

	got, err := s.FindItem("plan", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, item, got)

	path, err := s.ImagePath("plan", item.ImageRef)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestStoreUpdateMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddExtraction("plan", 1, Rect{X: 1, Y: 1, Width: 5, Height: 5}, testImage())
	require.NoError(t, err)

	md := Metadata{Length: strPtr("1"), Breadth: strPtr("2"), Height: strPtr("3"), PaintCost: strPtr("4"), Note: strPtr("five")}
	require.NoError(t, s.UpdateMetadata("plan", 1, 1, md))

	got, err := s.FindItem("plan", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, md, got.Metadata)

	require.NoError(t, s.UpdateMetadata("plan", 1, 1, Metadata{Note: strPtr("")}))
	got, err = s.FindItem("plan", 1, 1)
	require.NoError(t, err)
	assert.True(t, got.Metadata.IsUnset())

	err = s.UpdateMetadata("plan", 1, 2, md)
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
}

func TestStoreConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	const n = 20

	var wg sync.WaitGroup
	numbers := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			numbers[i], errs[i] = s.AppendItem("plan", 1, LineItem{ImageRef: "x.png"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Ints(numbers)
	for i, got := range numbers {
		assert.Equal(t, i+1, got)
	}

	rec, err := s.Load("plan")
	require.NoError(t, err)
	assert.Len(t, rec.Items(1), n)
	assert.Equal(t, 0, s.locks.size())
}

func TestStoreLegacyRecordNormalized(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.Root(), "plan")
	require.NoError(t, os.MkdirAll(dir, 0755))
	legacy := `{"plan": {"Page 1": [{"line_item": 1, "coordinates": {"x": 1, "y": 1, "width": 2, "height": 2}, "img_path": "a.png", "metadata": {"lengthField": "", "noteField": "kept"}}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, recordFile), []byte(legacy), 0644))

	item, err := s.FindItem("plan", 1, 1)
	require.NoError(t, err)
	assert.Nil(t, item.Metadata.Length)
	assert.Equal(t, "kept", *item.Metadata.Note)
}

func TestStoreOpenImageMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.OpenImage("plan", "nope.png")
	assert.ErrorIs(t, err, apperrors.ErrImageNotFound)
}

func TestStoreSweepOrphans(t *testing.T) {
	s := newTestStore(t)
	item, err := s.AddExtraction("plan", 1, Rect{X: 1, Y: 1, Width: 5, Height: 5}, testImage())
	require.NoError(t, err)

	orphan, err := s.ImagePath("plan", "extracted_page1_99.0_99.0.png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(orphan, []byte("png"), 0644))

	removed, err := s.SweepOrphans("plan")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, orphan)

	kept, err := s.ImagePath("plan", item.ImageRef)
	require.NoError(t, err)
	assert.FileExists(t, kept)

	removed, err = s.SweepOrphans("never-extracted")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStoreDocuments(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendItem("b-plan", 1, LineItem{ImageRef: "x.png"})
	require.NoError(t, err)
	_, err = s.AppendItem("a-plan", 1, LineItem{ImageRef: "x.png"})
	require.NoError(t, err)

	docs, err := s.Documents()
	require.NoError(t, err)
	assert.Equal(t, []string{"a-plan", "b-plan"}, docs)
}

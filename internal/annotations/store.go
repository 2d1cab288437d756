package annotations

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/gmsas95/takeoff/internal/security"
	"go.uber.org/zap"
)

const (
	recordFile = "extracted_data.json"
	imagesDir  = "images"
)

// Store persists one Record per document under root/<doc>/.
type Store struct {
	root   string
	logger *zap.Logger
	locks  *lockSet
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create instance directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		root:   dir,
		logger: logger,
		locks:  newLockSet(),
	}, nil
}

// Root returns the directory holding all document directories.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of a document.
func (s *Store) Dir(doc string) (string, error) {
	dir, err := security.JoinName(s.root, doc)
	if err != nil {
		return "", apperrors.Invalid("invalid document name %q", doc)
	}
	return dir, nil
}

// ImagePath resolves an image reference inside the document's image directory.
// Older records kept their PNGs directly in the document directory; those are
// found when the image directory has no such file.
func (s *Store) ImagePath(doc, ref string) (string, error) {
	dir, err := s.Dir(doc)
	if err != nil {
		return "", err
	}
	p, err := security.JoinName(filepath.Join(dir, imagesDir), ref)
	if err != nil {
		return "", apperrors.Invalid("invalid image reference %q", ref)
	}
	if _, err := os.Stat(p); err == nil || !strings.EqualFold(filepath.Ext(ref), ".png") {
		return p, nil
	}
	if legacy, err := security.JoinName(dir, ref); err == nil {
		if info, err := os.Stat(legacy); err == nil && info.Mode().IsRegular() {
			return legacy, nil
		}
	}
	return p, nil
}

// Load returns the document's record, or an empty record when none exists.
func (s *Store) Load(doc string) (*Record, error) {
	dir, err := s.Dir(doc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return NewRecord(doc), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", doc, err)
	}
	return ParseRecord(doc, data)
}

// Save replaces the document's record atomically.
func (s *Store) Save(doc string, rec *Record) error {
	unlock := s.locks.lock(doc)
	defer unlock()
	return s.save(doc, rec)
}

func (s *Store) save(doc string, rec *Record) error {
	dir, err := s.Dir(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}
	rec.Document = doc

	data, err := marshalIndent(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", doc, err)
	}
	return writeFileAtomic(filepath.Join(dir, recordFile), data)
}

// Update runs fn against the current record under the document lock and saves
// the result. Nothing is written when fn fails.
func (s *Store) Update(doc string, fn func(*Record) error) error {
	unlock := s.locks.lock(doc)
	defer unlock()

	rec, err := s.Load(doc)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	return s.save(doc, rec)
}

// AppendItem appends item to page and returns its assigned number.
func (s *Store) AppendItem(doc string, page int, item LineItem) (int, error) {
	var n int
	err := s.Update(doc, func(rec *Record) error {
		n = rec.Append(page, item)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// FindItem returns the first item numbered n on page.
func (s *Store) FindItem(doc string, page, n int) (LineItem, error) {
	rec, err := s.Load(doc)
	if err != nil {
		return LineItem{}, err
	}
	return rec.Find(page, n)
}

// RemoveItem deletes the item's image file, then its record entry. A missing
// image file is not an error. An item on a page without entries is reported
// as ItemNotFound.
func (s *Store) RemoveItem(doc string, page, n int) (LineItem, error) {
	var removed LineItem
	err := s.Update(doc, func(rec *Record) error {
		item, err := rec.Find(page, n)
		if errors.Is(err, apperrors.ErrPageNotFound) {
			return apperrors.ItemNotFound(page, n)
		}
		if err != nil {
			return err
		}
		s.removeImage(doc, item.ImageRef)

		removed, err = rec.Remove(page, n)
		return err
	})
	if err != nil {
		return LineItem{}, err
	}
	return removed, nil
}

func (s *Store) removeImage(doc, ref string) {
	p, err := s.ImagePath(doc, ref)
	if err != nil {
		s.logger.Warn("Skipping image removal", zap.String("document", doc), zap.String("image", ref), zap.Error(err))
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove image", zap.String("document", doc), zap.String("image", ref), zap.Error(err))
	}
}

// UpdateMetadata replaces an item's metadata wholesale.
func (s *Store) UpdateMetadata(doc string, page, n int, md Metadata) error {
	return s.Update(doc, func(rec *Record) error {
		return rec.SetMetadata(page, n, md)
	})
}

// AddExtraction writes img as a new image file and then records a line item
// referencing it, both under the document lock. A failure after the image is
// written leaves an orphaned file for the janitor, never a dangling record.
func (s *Store) AddExtraction(doc string, page int, rect Rect, img image.Image) (LineItem, error) {
	var item LineItem
	err := s.Update(doc, func(rec *Record) error {
		dir, err := s.Dir(doc)
		if err != nil {
			return err
		}
		imgDir := filepath.Join(dir, imagesDir)
		if err := os.MkdirAll(imgDir, 0755); err != nil {
			return fmt.Errorf("create image directory: %w", err)
		}

		ref, err := uniqueImageName(imgDir, ImageName(page, rect))
		if err != nil {
			return err
		}
		if err := writePNG(filepath.Join(imgDir, ref), img); err != nil {
			return err
		}

		item = LineItem{Coordinates: rect, ImageRef: ref}
		item.Number = rec.Append(page, item)
		return nil
	})
	if err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// OpenImage decodes the raster of an image reference.
func (s *Store) OpenImage(doc, ref string) (image.Image, error) {
	p, err := s.ImagePath(doc, ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.ImageNotFound(ref, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", ref, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", ref, err)
	}
	return img, nil
}

// SweepOrphans removes files in the document's image directory that no line
// item references, such as leftovers of a crash between image and record
// writes. It returns the number of files removed.
func (s *Store) SweepOrphans(doc string) (int, error) {
	removed := 0
	unlock := s.locks.lock(doc)
	defer unlock()

	dir, err := s.Dir(doc)
	if err != nil {
		return 0, err
	}
	rec, err := s.Load(doc)
	if err != nil {
		return 0, err
	}
	refs := rec.ImageRefs()

	entries, err := os.ReadDir(filepath.Join(dir, imagesDir))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list images of %s: %w", doc, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := refs[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, imagesDir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove orphaned image", zap.String("document", doc), zap.String("image", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Documents lists the names of documents that have a directory in the store.
func (s *Store) Documents() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var docs []string
	for _, e := range entries {
		if e.IsDir() && security.ValidateName(e.Name()) == nil {
			docs = append(docs, e.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}

// uniqueImageName returns base, or base with a _2, _3, ... suffix when a file
// of that name already exists in dir.
func uniqueImageName(dir, base string) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	for i := 2; ; i++ {
		_, err := os.Stat(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", name, err)
		}
		name = stem + "_" + strconv.Itoa(i) + ext
	}
}

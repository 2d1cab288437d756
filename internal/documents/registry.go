package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/gmsas95/takeoff/internal/security"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pdfExt = ".pdf"

var unsafeStemChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Registry owns the upload directory. Resolved documents are cached until a
// filesystem event in the directory invalidates them.
type Registry struct {
	dir     string
	counter PageCounter
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Document
}

// NewRegistry creates a registry over dir
func NewRegistry(dir string, counter PageCounter, logger *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if counter == nil {
		counter = NewPDFCounter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dir:     dir,
		counter: counter,
		logger:  logger,
		cache:   make(map[string]*Document),
	}, nil
}

// Dir returns the upload directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Upload stores src as a new document. Only .pdf filenames are accepted and
// the content must validate as a PDF with at least one page.
func (r *Registry) Upload(filename string, src io.Reader) (*Document, error) {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, pdfExt) {
		return nil, apperrors.Invalid("only PDF uploads are accepted, got %q", filename)
	}

	id := uuid.NewString()
	name := id + "_" + SanitizeStem(strings.TrimSuffix(base, ext))
	dst, err := security.JoinName(r.dir, name+pdfExt)
	if err != nil {
		return nil, apperrors.Invalid("invalid upload filename %q", filename)
	}

	tmp, err := os.CreateTemp(r.dir, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close upload: %w", err)
	}

	if err := r.counter.Validate(tmp.Name()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "uploaded file is not a valid PDF")
	}
	pages, err := r.counter.PageCount(tmp.Name())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "uploaded file is not a valid PDF")
	}
	if pages < 1 {
		return nil, apperrors.Invalid("uploaded PDF has no pages")
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &Document{ID: id, Name: name, Path: dst, PageCount: pages}
	r.mu.Lock()
	r.cache[id] = doc
	r.cache[name] = doc
	r.mu.Unlock()

	r.logger.Info("Document uploaded",
		zap.String("document", name),
		zap.String("filename", base),
		zap.Int("pages", pages),
	)
	return doc, nil
}

// Resolve finds the document whose ID or name is ref. ref is copied before it
// is cached, so callers may pass strings backed by reused buffers.
func (r *Registry) Resolve(ref string) (*Document, error) {
	if err := security.ValidateName(ref); err != nil {
		return nil, apperrors.DocumentNotFound(ref)
	}

	r.mu.RLock()
	doc, ok := r.cache[ref]
	r.mu.RUnlock()
	if ok {
		return doc, nil
	}

	path, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	pages, err := r.counter.PageCount(path)
	if err != nil {
		return nil, fmt.Errorf("count pages of %s: %w", ref, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc = &Document{ID: idOf(name), Name: name, Path: path, PageCount: pages}

	r.mu.Lock()
	r.cache[strings.Clone(ref)] = doc
	r.mu.Unlock()
	return doc, nil
}

// lookup matches ref against the stored files: either the full name, or the
// ID prefix of exactly one name.
func (r *Registry) lookup(ref string) (string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return "", fmt.Errorf("list uploads: %w", err)
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), pdfExt) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if stem == ref {
			return filepath.Join(r.dir, e.Name()), nil
		}
		if strings.HasPrefix(stem, ref+"_") {
			matches = append(matches, e.Name())
		}
	}

	switch len(matches) {
	case 0:
		return "", apperrors.DocumentNotFound(ref)
	case 1:
		return filepath.Join(r.dir, matches[0]), nil
	default:
		r.logger.Warn("Ambiguous document reference", zap.String("ref", ref), zap.Strings("matches", matches))
		return "", apperrors.New(apperrors.CodeDocumentNotFound, fmt.Sprintf("PDF not found: %s is ambiguous", ref))
	}
}

// Invalidate drops every cached resolution.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]*Document)
	r.mu.Unlock()
}

// Watch invalidates the cache whenever a PDF in the upload directory is
// created, replaced or removed. It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}
	r.logger.Debug("Watching upload directory", zap.String("dir", r.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), pdfExt) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				r.logger.Debug("Upload directory changed", zap.String("file", filepath.Base(ev.Name)), zap.String("op", ev.Op.String()))
				r.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				r.Invalidate()
			}
			r.logger.Warn("Upload watcher error", zap.Error(err))
		}
	}
}

// SanitizeStem reduces an uploaded filename stem to a safe path segment.
func SanitizeStem(stem string) string {
	s := unsafeStemChars.ReplaceAllString(strings.TrimSpace(stem), "_")
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	s = strings.Trim(s, "._")
	if s == "" {
		return "document"
	}
	return s
}

// idOf returns the leading UUID of a document name, or the name itself when it
// carries none.
func idOf(name string) string {
	if len(name) > 36 {
		if _, err := uuid.Parse(name[:36]); err == nil && name[36] == '_' {
			return name[:36]
		}
	}
	return name
}

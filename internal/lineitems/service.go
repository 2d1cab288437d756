// Package lineitems runs the extraction, OCR refinement and metadata flows
// over the document registry, the renderer and the annotation store.
package lineitems

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/gmsas95/takeoff/internal/annotations"
	"github.com/gmsas95/takeoff/internal/documents"
	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/gmsas95/takeoff/internal/metrics"
	"github.com/gmsas95/takeoff/internal/ocr"
	"github.com/gmsas95/takeoff/internal/render"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Registry resolves and stores documents.
type Registry interface {
	Upload(filename string, src io.Reader) (*documents.Document, error)
	Resolve(ref string) (*documents.Document, error)
}

// Service implements every line item operation.
type Service struct {
	registry   Registry
	renderer   render.Renderer
	store      *annotations.Store
	recognizer ocr.Recognizer
	metrics    *metrics.Metrics
	logger     *zap.Logger
	upscale    int
}

// Option configures a Service.
type Option func(*Service)

// WithUpscale sets the linear upscale factor applied to extracted regions.
func WithUpscale(factor int) Option {
	return func(s *Service) {
		if factor >= 1 {
			s.upscale = factor
		}
	}
}

// WithMetrics records operation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a line item service
func NewService(registry Registry, renderer render.Renderer, store *annotations.Store, recognizer ocr.Recognizer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		registry:   registry,
		renderer:   renderer,
		store:      store,
		recognizer: recognizer,
		logger:     logger,
		upscale:    2,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// ExtractResult describes a newly created line item.
type ExtractResult struct {
	Message  string               `json:"message"`
	Page     string               `json:"page"`
	LineItem int                  `json:"line_item"`
	Item     annotations.LineItem `json:"-"`
}

// ItemView is a line item together with the document it belongs to.
type ItemView struct {
	Document *documents.Document
	Item     annotations.LineItem
}

// Upload registers a new document.
func (s *Service) Upload(filename string, src io.Reader) (*documents.Document, error) {
	doc, err := s.registry.Upload(filename, src)
	s.metrics.RecordUpload(err == nil)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Document resolves a document reference.
func (s *Service) Document(ref string) (*documents.Document, error) {
	return s.registry.Resolve(ref)
}

// PageCount returns the number of pages of a document.
func (s *Service) PageCount(ref string) (int, error) {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return 0, err
	}
	return doc.PageCount, nil
}

func (s *Service) resolvePage(ref string, page int) (*documents.Document, error) {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if !doc.HasPage(page) {
		return nil, apperrors.PageOutOfRange(page, doc.PageCount)
	}
	return doc, nil
}

// PagePreview renders a full page as SVG.
func (s *Service) PagePreview(ctx context.Context, ref string, page int) ([]byte, error) {
	doc, err := s.resolvePage(ref, page)
	if err != nil {
		return nil, err
	}
	svg, err := s.renderer.RenderPage(ctx, doc.Path, page)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to render page")
	}
	return svg, nil
}

// Extract rasterizes rect on page, stores the image and appends a new line
// item with unset metadata.
func (s *Service) Extract(ctx context.Context, ref string, page int, rect annotations.Rect) (*ExtractResult, error) {
	res, err := s.extract(ctx, ref, page, rect)
	s.metrics.RecordExtraction(err == nil)
	return res, err
}

func (s *Service) extract(ctx context.Context, ref string, page int, rect annotations.Rect) (*ExtractResult, error) {
	if err := rect.Validate(); err != nil {
		return nil, apperrors.Invalid("Invalid coordinates: %v", err)
	}
	doc, err := s.resolvePage(ref, page)
	if err != nil {
		return nil, err
	}

	img, err := s.renderer.RenderRegion(ctx, doc.Path, page, render.Region{
		X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to render region")
	}
	img = render.Upscale(img, s.upscale)

	item, err := s.store.AddExtraction(doc.Name, page, rect, img)
	if err != nil {
		return nil, err
	}

	path, err := s.store.ImagePath(doc.Name, item.ImageRef)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Line item extracted",
		zap.String("document", doc.Name),
		zap.Int("page", page),
		zap.Int("line_item", item.Number),
		zap.String("image", item.ImageRef),
	)
	return &ExtractResult{
		Message:  "BBox contents saved as " + path,
		Page:     annotations.PageKey(page),
		LineItem: item.Number,
		Item:     item,
	}, nil
}

// GetItem returns a line item with normalized metadata.
func (s *Service) GetItem(ref string, page, n int) (*ItemView, error) {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	item, err := s.store.FindItem(doc.Name, page, n)
	if err != nil {
		return nil, err
	}
	item.Metadata = item.Metadata.Normalize()
	return &ItemView{Document: doc, Item: item}, nil
}

// ListItems returns the page table of a document: every page of the document
// appears, empty ones as null.
func (s *Service) ListItems(ref string) (*annotations.Table, error) {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Load(doc.Name)
	if err != nil {
		return nil, err
	}
	return annotations.NewTable(rec, doc.PageCount), nil
}

// UpdateMetadata replaces the item's metadata wholesale.
func (s *Service) UpdateMetadata(ref string, page, n int, md annotations.Metadata) error {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return err
	}
	if err := s.store.UpdateMetadata(doc.Name, page, n, md); err != nil {
		return err
	}
	s.metrics.RecordMetadataUpdate()
	return nil
}

// DeleteItem removes the item's image, then its record entry.
func (s *Service) DeleteItem(ref string, page, n int) error {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return err
	}
	removed, err := s.store.RemoveItem(doc.Name, page, n)
	if err != nil {
		return err
	}
	s.metrics.RecordDeletion()
	s.logger.Info("Line item deleted",
		zap.String("document", doc.Name),
		zap.Int("page", page),
		zap.Int("line_item", n),
		zap.String("image", removed.ImageRef),
	)
	return nil
}

// ImagePath resolves an image file of a document for serving.
func (s *Service) ImagePath(ref, file string) (string, error) {
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return "", err
	}
	return s.store.ImagePath(doc.Name, file)
}

// RefineOCR recognizes text inside crop, a pixel rectangle of the item's
// stored raster. The crop is clipped to the raster; a crop entirely outside it
// yields no lines. The store is never modified.
func (s *Service) RefineOCR(ctx context.Context, ref string, page, n int, crop image.Rectangle) ([]string, error) {
	if crop.Dx() <= 0 || crop.Dy() <= 0 {
		return nil, apperrors.Invalid("Invalid coordinates: width and height must be positive")
	}
	doc, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	item, err := s.store.FindItem(doc.Name, page, n)
	if err != nil {
		return nil, err
	}
	img, err := s.store.OpenImage(doc.Name, item.ImageRef)
	if err != nil {
		return nil, err
	}

	region := crop.Intersect(img.Bounds())
	if region.Empty() {
		s.metrics.RecordOCR(metrics.OCREmpty, 0)
		return []string{}, nil
	}

	start := time.Now()
	lines, err := s.recognizer.Recognize(ctx, subImage(img, region))
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, apperrors.ErrOCRUnavailable) {
			s.metrics.RecordOCR(metrics.OCRUnavailable, 0)
			return nil, err
		}
		s.metrics.RecordOCR(metrics.OCRFailed, elapsed)
		s.logger.Error("Text recognition failed", zap.String("document", doc.Name), zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "text recognition failed")
	}
	if len(lines) == 0 {
		s.metrics.RecordOCR(metrics.OCREmpty, elapsed)
		return []string{}, nil
	}
	s.metrics.RecordOCR(metrics.OCRText, elapsed)
	return lines, nil
}

// subImage returns the pixels of img inside r, copying when img cannot share
// its buffer.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Sweep removes unreferenced images of every stored document and returns the
// total removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	docs, err := s.store.Documents()
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.store.SweepOrphans(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", doc, err))
			continue
		}
		if n > 0 {
			s.logger.Info("Removed orphaned images", zap.String("document", doc), zap.Int("count", n))
		}
		total += n
	}
	s.metrics.RecordOrphansSwept(total)
	return total, errors.Join(errs...)
}

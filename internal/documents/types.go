// Package documents tracks uploaded drawings and resolves document references.
package documents

// Document is an uploaded PDF.
type Document struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"-" yaml:"-"`
	PageCount int    `json:"page_count" yaml:"page_count"`
}

// HasPage reports whether page lies in 1..PageCount.
func (d *Document) HasPage(page int) bool {
	return page >= 1 && page <= d.PageCount
}

// PageCounter inspects PDF files on disk.
type PageCounter interface {
	// Validate rejects files that are not readable PDFs.
	Validate(path string) error
	// PageCount returns the number of pages.
	PageCount(path string) (int, error)
}

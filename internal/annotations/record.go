package annotations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/gmsas95/takeoff/internal/errors"
)

// Record is the annotation record of one document. A page is present in
// Pages only while it holds at least one line item.
type Record struct {
	Document string
	Pages    map[int][]LineItem
}

// NewRecord returns the empty initial record of a document.
func NewRecord(doc string) *Record {
	return &Record{Document: doc, Pages: make(map[int][]LineItem)}
}

// ParseRecord decodes the on-disk form {doc: {"Page n": [...]}}. Entries keyed
// by another document name and keys that are not page labels are ignored.
func ParseRecord(doc string, data []byte) (*Record, error) {
	rec := NewRecord(doc)
	if len(bytes.TrimSpace(data)) == 0 {
		return rec, nil
	}

	var raw map[string]map[string][]LineItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", doc, err)
	}

	for key, items := range raw[doc] {
		page, ok := ParsePageKey(key)
		if !ok || len(items) == 0 {
			continue
		}
		rec.Pages[page] = items
	}
	return rec, nil
}

// MarshalJSON writes the record with page keys in numeric order.
func (r *Record) MarshalJSON() ([]byte, error) {
	return marshalPages(r.Document, r.Pages, r.PageNumbers())
}

// PageNumbers returns the populated pages in ascending order.
func (r *Record) PageNumbers() []int {
	pages := make([]int, 0, len(r.Pages))
	for p := range r.Pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Items returns the line items of a page; nil when the page is absent.
func (r *Record) Items(page int) []LineItem {
	return r.Pages[page]
}

// Append assigns the next number on the page, count+1, and appends the item.
func (r *Record) Append(page int, item LineItem) int {
	if r.Pages == nil {
		r.Pages = make(map[int][]LineItem)
	}
	item.Number = len(r.Pages[page]) + 1
	item.Metadata = item.Metadata.Normalize()
	r.Pages[page] = append(r.Pages[page], item)
	return item.Number
}

// index returns the slot of the first item numbered n on page.
func (r *Record) index(page, n int) (int, error) {
	items, ok := r.Pages[page]
	if !ok {
		return -1, apperrors.PageNotFound(page)
	}
	for i := range items {
		if items[i].Number == n {
			return i, nil
		}
	}
	return -1, apperrors.ItemNotFound(page, n)
}

// Find returns the first item numbered n on page.
func (r *Record) Find(page, n int) (LineItem, error) {
	i, err := r.index(page, n)
	if err != nil {
		return LineItem{}, err
	}
	return r.Pages[page][i], nil
}

// Remove deletes the first item numbered n and drops the page once empty.
func (r *Record) Remove(page, n int) (LineItem, error) {
	i, err := r.index(page, n)
	if err != nil {
		return LineItem{}, err
	}
	items := r.Pages[page]
	removed := items[i]
	items = append(items[:i:i], items[i+1:]...)
	if len(items) == 0 {
		delete(r.Pages, page)
	} else {
		r.Pages[page] = items
	}
	return removed, nil
}

// SetMetadata replaces the metadata of the first item numbered n wholesale.
func (r *Record) SetMetadata(page, n int, md Metadata) error {
	i, err := r.index(page, n)
	if err != nil {
		return err
	}
	r.Pages[page][i].Metadata = md.Normalize()
	return nil
}

// ImageRefs returns the set of image filenames referenced by any item.
func (r *Record) ImageRefs() map[string]struct{} {
	refs := make(map[string]struct{})
	for _, items := range r.Pages {
		for _, it := range items {
			refs[it.ImageRef] = struct{}{}
		}
	}
	return refs
}

// Table is the page-indexed listing of a document: every page of the
// document appears, pages without items carry a nil slice (JSON null).
type Table struct {
	Document string
	Pages    map[int][]LineItem
}

// NewTable builds the listing for a document with pageCount pages. Record
// pages beyond pageCount are kept.
func NewTable(rec *Record, pageCount int) *Table {
	t := &Table{Document: rec.Document, Pages: make(map[int][]LineItem, pageCount)}
	for p := 1; p <= pageCount; p++ {
		t.Pages[p] = nil
	}
	for p, items := range rec.Pages {
		t.Pages[p] = items
	}
	return t
}

// PageNumbers returns every listed page in ascending order.
func (t *Table) PageNumbers() []int {
	pages := make([]int, 0, len(t.Pages))
	for p := range t.Pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// MarshalJSON writes {doc: {"Page 1": null, "Page 2": [...]}} in page order.
func (t *Table) MarshalJSON() ([]byte, error) {
	return marshalPages(t.Document, t.Pages, t.PageNumbers())
}

func marshalPages(doc string, pages map[int][]LineItem, order []int) ([]byte, error) {
	var buf bytes.Buffer
	name, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	buf.Write(name)
	buf.WriteString(":{")
	for i, p := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(PageKey(p))
		buf.Write(key)
		buf.WriteByte(':')
		items := pages[p]
		if items == nil {
			buf.WriteString("null")
			continue
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", PageKey(p), err)
		}
		buf.Write(data)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

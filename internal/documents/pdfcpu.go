package documents

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfcpuCounter implements PageCounter with pdfcpu.
type pdfcpuCounter struct {
	conf *model.Configuration
}

// NewPDFCounter creates a PageCounter backed by pdfcpu
func NewPDFCounter() PageCounter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &pdfcpuCounter{conf: conf}
}

func (p *pdfcpuCounter) Validate(path string) error {
	if err := api.ValidateFile(path, p.conf); err != nil {
		return fmt.Errorf("pdfcpu validate: %w", err)
	}
	return nil
}

func (p *pdfcpuCounter) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

package pdfnative

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

// Extractor reads the text layer in-process, for hosts without poppler-utils.
type Extractor struct {
	maxPages int
}

func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

func (e *Extractor) ExtractText(ctx context.Context, pdfPath string) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrToolInvocation, "parse pdf", fmt.Errorf("%s: %v", pdfPath, r))
		}
	}()

	file, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return "", domain.WrapError(domain.ErrToolInvocation, "open pdf", err)
	}
	defer file.Close()

	var b strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if e.maxPages > 0 && i > e.maxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", domain.WrapError(domain.ErrToolInvocation, fmt.Sprintf("read page %d", i), err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

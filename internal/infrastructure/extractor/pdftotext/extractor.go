package pdftotext

import (
	"context"

	"github.com/kirillkom/court-registry/internal/infrastructure/process"
)

const defaultBinary = "pdftotext"

// Extractor pulls the text layer out of a PDF with poppler's pdftotext.
type Extractor struct {
	runner  process.CommandRunner
	binPath string
}

// NewExtractor creates an Extractor. If binPath is empty, "pdftotext" is resolved from PATH.
func NewExtractor(runner process.CommandRunner, binPath string) *Extractor {
	if binPath == "" {
		binPath = defaultBinary
	}
	return &Extractor{runner: runner, binPath: binPath}
}

func (e *Extractor) Binary() string { return e.binPath }

// ExtractText writes the PDF text layer to stdout ("-") and returns it unmodified.
func (e *Extractor) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	out, err := e.runner.Run(ctx, e.binPath, "-enc", "UTF-8", pdfPath, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

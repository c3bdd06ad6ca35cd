package ports

import "context"

// TextExtractor pulls the embedded text layer from a PDF without OCR.
// The returned text is raw; callers normalize it.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Rasterizer renders every page of a PDF into outDir and returns the image
// paths in ascending page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error)
}

// PageRecognizer runs OCR on a single page image.
type PageRecognizer interface {
	Recognize(ctx context.Context, imagePath string, languages []string) (string, error)
}

// OCREngine recovers text from image-only PDFs.
type OCREngine interface {
	OCR(ctx context.Context, pdfPath string) (string, error)
}

// PageCounter reports the number of pages declared by a PDF.
type PageCounter interface {
	PageCount(ctx context.Context, pdfPath string) (int, error)
}

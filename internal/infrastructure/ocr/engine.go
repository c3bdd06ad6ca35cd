package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/court-registry/internal/core/domain"
	"github.com/kirillkom/court-registry/internal/core/ports"
)

const (
	DefaultDPI  = 300
	workDirGlob = "ocr-*"
)

// DefaultLanguages are the registry's working languages in tesseract notation.
var DefaultLanguages = []string{"ara", "fra", "eng"}

type PageObserver interface {
	ObserveOCRPages(pages int)
}

type Options struct {
	WorkDir   string
	DPI       int
	Languages []string
	Counter   ports.PageCounter
	Observer  PageObserver
	Logger    *slog.Logger
}

// Engine rasterizes a PDF into a private temp directory and OCRs the pages
// one at a time, in page order.
type Engine struct {
	rasterizer ports.Rasterizer
	recognizer ports.PageRecognizer
	counter    ports.PageCounter
	observer   PageObserver
	logger     *slog.Logger

	workDir   string
	dpi       int
	languages []string
}

func NewEngine(rasterizer ports.Rasterizer, recognizer ports.PageRecognizer, opts Options) *Engine {
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	languages := opts.Languages
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rasterizer: rasterizer,
		recognizer: recognizer,
		counter:    opts.Counter,
		observer:   opts.Observer,
		logger:     logger,
		workDir:    opts.WorkDir,
		dpi:        dpi,
		languages:  languages,
	}
}

func (e *Engine) OCR(ctx context.Context, pdfPath string) (string, error) {
	dir, err := os.MkdirTemp(e.workDir, workDirGlob)
	if err != nil {
		return "", fmt.Errorf("create ocr work dir: %w", err)
	}
	defer e.removeWorkDir(dir)

	pages, err := e.rasterizer.Rasterize(ctx, pdfPath, dir, e.dpi)
	if err != nil {
		return "", fmt.Errorf("rasterize pages: %w", err)
	}
	if len(pages) == 0 {
		return "", domain.WrapError(domain.ErrNoPagesRendered, "rasterize pages",
			fmt.Errorf("%s produced no page images at %d dpi", pdfPath, e.dpi))
	}
	if err := e.verifyPageCount(ctx, pdfPath, len(pages)); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.recognizer.Recognize(ctx, page, e.languages)
		if err != nil {
			return "", fmt.Errorf("ocr page %d of %d: %w", i+1, len(pages), err)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}

	if e.observer != nil {
		e.observer.ObserveOCRPages(len(pages))
	}
	return b.String(), nil
}

// verifyPageCount fails the attempt when the rasterizer skipped pages. A PDF
// pdfcpu cannot parse is not an error here; the rasterizer already read it.
func (e *Engine) verifyPageCount(ctx context.Context, pdfPath string, rendered int) error {
	if e.counter == nil {
		return nil
	}
	declared, err := e.counter.PageCount(ctx, pdfPath)
	if err != nil {
		e.logger.Warn("ocr_page_count_unavailable", "path", pdfPath, "error", err)
		return nil
	}
	if declared != rendered {
		return domain.WrapError(domain.ErrIncompleteRender, "rasterize pages",
			fmt.Errorf("rendered %d of %d pages", rendered, declared))
	}
	return nil
}

func (e *Engine) removeWorkDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Error("ocr_cleanup_failed", "dir", dir, "error", err)
	}
}

// RemoveStale deletes OCR work directories older than maxAge left behind by an
// interrupted process. Directories of attempts still in flight are younger
// than the attempt timeout and survive.
func RemoveStale(workDir string, maxAge time.Duration) (int, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(workDir, workDirGlob))
	if err != nil {
		return 0, fmt.Errorf("glob ocr work dirs: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, dir := range matches {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("remove stale ocr dir %s: %w", dir, err)
		}
		removed++
	}
	return removed, nil
}

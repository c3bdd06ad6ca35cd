package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

type rasterizerFake struct {
	pages   int
	err     error
	gotDPI  int
	lastDir string
}

func (f *rasterizerFake) Rasterize(_ context.Context, _ string, outDir string, dpi int) ([]string, error) {
	f.gotDPI = dpi
	f.lastDir = outDir
	paths := make([]string, 0, f.pages)
	for i := 1; i <= f.pages; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i))
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	if f.err != nil {
		return nil, f.err
	}
	return paths, nil
}

type recognizerFake struct {
	texts     map[string]string
	failOn    string
	calls     []string
	languages []string
}

func (f *recognizerFake) Recognize(_ context.Context, imagePath string, languages []string) (string, error) {
	name := filepath.Base(imagePath)
	f.calls = append(f.calls, name)
	f.languages = languages
	if name == f.failOn {
		return "", domain.WrapError(domain.ErrToolInvocation, "run tesseract", errors.New("exit status 1"))
	}
	return f.texts[name], nil
}

type counterFake struct {
	pages int
	err   error
}

func (f counterFake) PageCount(context.Context, string) (int, error) { return f.pages, f.err }

type observerFake struct{ pages int }

func (f *observerFake) ObserveOCRPages(pages int) { f.pages += pages }

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover OCR artifacts, found %d entries", len(entries))
	}
}

func TestOCRConcatenatesPagesInOrderAndCleansUp(t *testing.T) {
	workDir := t.TempDir()
	raster := &rasterizerFake{pages: 2}
	recog := &recognizerFake{texts: map[string]string{"page-1.png": "Page1", "page-2.png": "Page2"}}
	observer := &observerFake{}
	engine := NewEngine(raster, recog, Options{WorkDir: workDir, Counter: counterFake{pages: 2}, Observer: observer})

	text, err := engine.OCR(context.Background(), "/data/scan.pdf")
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if text != "Page1\nPage2" {
		t.Fatalf("expected pages joined in order, got %q", text)
	}
	if raster.gotDPI != DefaultDPI {
		t.Fatalf("expected %d dpi, got %d", DefaultDPI, raster.gotDPI)
	}
	if strings.Join(recog.languages, "+") != "ara+fra+eng" {
		t.Fatalf("unexpected languages %v", recog.languages)
	}
	if observer.pages != 2 {
		t.Fatalf("expected 2 observed pages, got %d", observer.pages)
	}
	assertEmptyDir(t, workDir)
}

func TestOCRPreservesOrderForManyPages(t *testing.T) {
	raster := &rasterizerFake{pages: 12}
	texts := map[string]string{}
	want := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		texts[fmt.Sprintf("page-%d.png", i)] = fmt.Sprintf("p%d", i)
		want = append(want, fmt.Sprintf("p%d", i))
	}
	engine := NewEngine(raster, &recognizerFake{texts: texts}, Options{WorkDir: t.TempDir()})

	text, err := engine.OCR(context.Background(), "/data/scan.pdf")
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if text != strings.Join(want, "\n") {
		t.Fatalf("page order not preserved: %q", text)
	}
}

func TestOCRZeroPagesIsNoPagesRendered(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(&rasterizerFake{pages: 0}, &recognizerFake{}, Options{WorkDir: workDir})

	_, err := engine.OCR(context.Background(), "/data/blank.pdf")
	if !domain.IsKind(err, domain.ErrNoPagesRendered) {
		t.Fatalf("expected ErrNoPagesRendered, got %v", err)
	}
	assertEmptyDir(t, workDir)
}

func TestOCRPageFailureAbortsAndCleansUp(t *testing.T) {
	workDir := t.TempDir()
	recog := &recognizerFake{
		texts:  map[string]string{"page-1.png": "one", "page-3.png": "three"},
		failOn: "page-2.png",
	}
	engine := NewEngine(&rasterizerFake{pages: 3}, recog, Options{WorkDir: workDir})

	text, err := engine.OCR(context.Background(), "/data/scan.pdf")
	if !domain.IsKind(err, domain.ErrToolInvocation) {
		t.Fatalf("expected ErrToolInvocation, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected no partial text, got %q", text)
	}
	if !strings.Contains(err.Error(), "page 2 of 3") {
		t.Fatalf("expected failing page in error, got %v", err)
	}
	if len(recog.calls) != 2 {
		t.Fatalf("expected OCR to stop at the failing page, calls=%v", recog.calls)
	}
	assertEmptyDir(t, workDir)
}

func TestOCRRasterizerErrorCleansUpPartialOutput(t *testing.T) {
	workDir := t.TempDir()
	raster := &rasterizerFake{pages: 2, err: domain.WrapError(domain.ErrTimeout, "run pdftoppm", errors.New("killed"))}
	engine := NewEngine(raster, &recognizerFake{}, Options{WorkDir: workDir})

	_, err := engine.OCR(context.Background(), "/data/scan.pdf")
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	assertEmptyDir(t, workDir)
}

func TestOCRIncompleteRenderFails(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(&rasterizerFake{pages: 2}, &recognizerFake{}, Options{
		WorkDir: workDir,
		Counter: counterFake{pages: 3},
	})

	_, err := engine.OCR(context.Background(), "/data/scan.pdf")
	if !domain.IsKind(err, domain.ErrIncompleteRender) {
		t.Fatalf("expected ErrIncompleteRender, got %v", err)
	}
	assertEmptyDir(t, workDir)
}

func TestOCRSkipsPageCheckWhenCounterFails(t *testing.T) {
	recog := &recognizerFake{texts: map[string]string{"page-1.png": "only"}}
	engine := NewEngine(&rasterizerFake{pages: 1}, recog, Options{
		WorkDir: t.TempDir(),
		Counter: counterFake{err: errors.New("pdfcpu: malformed trailer")},
	})

	text, err := engine.OCR(context.Background(), "/data/scan.pdf")
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if text != "only" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestOCRUsesDistinctDirectoriesPerCall(t *testing.T) {
	workDir := t.TempDir()
	raster := &rasterizerFake{pages: 1}
	engine := NewEngine(raster, &recognizerFake{}, Options{WorkDir: workDir})

	if _, err := engine.OCR(context.Background(), "/a.pdf"); err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	first := raster.lastDir
	if _, err := engine.OCR(context.Background(), "/b.pdf"); err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if first == raster.lastDir {
		t.Fatalf("expected a fresh work dir per call, both used %s", first)
	}
}

func TestRemoveStaleDeletesOnlyOldDirs(t *testing.T) {
	workDir := t.TempDir()
	oldDir := filepath.Join(workDir, "ocr-old")
	newDir := filepath.Join(workDir, "ocr-new")
	other := filepath.Join(workDir, "uploads")
	for _, dir := range []string{oldDir, newDir, other} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := RemoveStale(workDir, time.Hour)
	if err != nil {
		t.Fatalf("RemoveStale() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed dir, got %d", removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected old dir removed, stat err = %v", err)
	}
	for _, dir := range []string{newDir, other} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected %s to survive: %v", dir, err)
		}
	}
}

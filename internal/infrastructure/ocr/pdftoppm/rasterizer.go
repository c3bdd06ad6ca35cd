package pdftoppm

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/court-registry/internal/infrastructure/process"
)

const (
	defaultBinary = "pdftoppm"
	pagePrefix    = "page"
)

// Rasterizer renders PDF pages to PNG files with poppler's pdftoppm.
type Rasterizer struct {
	runner  process.CommandRunner
	binPath string
}

func NewRasterizer(runner process.CommandRunner, binPath string) *Rasterizer {
	if binPath == "" {
		binPath = defaultBinary
	}
	return &Rasterizer{runner: runner, binPath: binPath}
}

func (r *Rasterizer) Binary() string { return r.binPath }

func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	root := filepath.Join(outDir, pagePrefix)
	if _, err := r.runner.Run(ctx, r.binPath, "-r", strconv.Itoa(dpi), "-png", pdfPath, root); err != nil {
		return nil, err
	}
	return collectPages(outDir)
}

// collectPages returns rendered pages ordered by page number. pdftoppm pads the
// number to the width of the page count, so lexical order is not page order
// once a run mixes widths.
func collectPages(outDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(outDir, pagePrefix+"-*.png"))
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}

	type page struct {
		num  int
		path string
	}
	pages := make([]page, 0, len(matches))
	for _, path := range matches {
		num, ok := pageNumber(filepath.Base(path))
		if !ok {
			continue
		}
		pages = append(pages, page{num: num, path: path})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}

func pageNumber(name string) (int, bool) {
	raw := strings.TrimSuffix(strings.TrimPrefix(name, pagePrefix+"-"), ".png")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

package pdftoppm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type runnerFake struct {
	args  []string
	files []string
}

func (f *runnerFake) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.args = args
	root := args[len(args)-1]
	for _, name := range f.files {
		if err := os.WriteFile(filepath.Join(filepath.Dir(root), name), []byte("png"), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestRasterizeOrdersPagesNumerically(t *testing.T) {
	dir := t.TempDir()
	runner := &runnerFake{files: []string{"page-10.png", "page-2.png", "page-1.png", "page-x.png", "notes.txt"}}

	pages, err := NewRasterizer(runner, "").Rasterize(context.Background(), "/data/scan.pdf", dir, 300)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	want := []string{"page-1.png", "page-2.png", "page-10.png"}
	if len(pages) != len(want) {
		t.Fatalf("expected %d pages, got %v", len(want), pages)
	}
	for i, name := range want {
		if filepath.Base(pages[i]) != name {
			t.Fatalf("page %d = %s, want %s", i, filepath.Base(pages[i]), name)
		}
	}

	wantArgs := []string{"-r", "300", "-png", "/data/scan.pdf", filepath.Join(dir, "page")}
	for i := range wantArgs {
		if runner.args[i] != wantArgs[i] {
			t.Fatalf("unexpected args %v", runner.args)
		}
	}
}

func TestRasterizeWithNoOutputReturnsEmpty(t *testing.T) {
	pages, err := NewRasterizer(&runnerFake{}, "").Rasterize(context.Background(), "/data/blank.pdf", t.TempDir(), 300)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %v", pages)
	}
}

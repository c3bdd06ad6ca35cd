package localfs

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

func TestSaveOpenResolve(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "doc-1_judgement.pdf", strings.NewReader("%PDF-1.7")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path, err := store.Resolve(ctx, "doc-1_judgement.pdf")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !filepath.IsAbs(path) || filepath.Base(path) != "doc-1_judgement.pdf" {
		t.Fatalf("unexpected resolved path %q", path)
	}

	rc, err := store.Open(ctx, "doc-1_judgement.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.7" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestResolveMissingFileIncludesPath(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = store.Resolve(context.Background(), "missing.pdf")
	if !domain.IsKind(err, domain.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing.pdf") {
		t.Fatalf("expected path in error, got %v", err)
	}
}

func TestDeleteRemovesFileAndIgnoresMissing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "doc-2_orphan.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "doc-2_orphan.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Resolve(ctx, "doc-2_orphan.pdf"); !domain.IsKind(err, domain.ErrFileNotFound) {
		t.Fatalf("expected file to be gone, got %v", err)
	}
	if err := store.Delete(ctx, "doc-2_orphan.pdf"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "../outside.pdf"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for escaping key, got %v", err)
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../etc/passwd", "/etc/passwd", "", "a/../../b"} {
		if err := store.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Save(%q) expected ErrInvalidInput, got %v", key, err)
		}
	}
}

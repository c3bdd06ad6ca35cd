//go:build !ocr

package gosseract

import (
	"context"
	"testing"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

func TestStubReportsToolNotFound(t *testing.T) {
	if Available {
		t.Fatalf("stub build must not report libtesseract as available")
	}
	_, err := NewRecognizer(300).Recognize(context.Background(), "page-1.png", []string{"ara"})
	if !domain.IsKind(err, domain.ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

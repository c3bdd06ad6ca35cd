//go:build !ocr

package gosseract

import (
	"context"
	"errors"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

const Available = false

// Recognizer is a placeholder for builds without the ocr tag.
type Recognizer struct{}

func NewRecognizer(int) *Recognizer {
	return &Recognizer{}
}

func (r *Recognizer) Recognize(context.Context, string, []string) (string, error) {
	return "", domain.WrapError(domain.ErrToolNotFound, "gosseract",
		errors.New("binary built without the ocr tag; rebuild with -tags ocr or use OCR_RECOGNIZER=tesseract"))
}

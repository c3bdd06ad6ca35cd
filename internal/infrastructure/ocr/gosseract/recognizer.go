//go:build ocr

package gosseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

// Available reports whether this build links libtesseract.
const Available = true

// Recognizer OCRs page images in-process through libtesseract.
type Recognizer struct {
	dpi int
}

func NewRecognizer(dpi int) *Recognizer {
	return &Recognizer{dpi: dpi}
}

func (r *Recognizer) Recognize(ctx context.Context, imagePath string, languages []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return "", domain.WrapError(domain.ErrToolInvocation, "set ocr languages", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", domain.WrapError(domain.ErrToolInvocation, "set page segmentation", err)
	}
	if r.dpi > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(r.dpi)); err != nil {
			return "", domain.WrapError(domain.ErrToolInvocation, "set ocr dpi", err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", domain.WrapError(domain.ErrToolInvocation, "load page image", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", domain.WrapError(domain.ErrToolInvocation, "recognize page", fmt.Errorf("%s: %w", imagePath, err))
	}
	return text, nil
}

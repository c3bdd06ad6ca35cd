package tesseract

import (
	"context"
	"strconv"
	"strings"

	"github.com/kirillkom/court-registry/internal/infrastructure/process"
)

const defaultBinary = "tesseract"

// Recognizer OCRs a page image with the tesseract CLI.
type Recognizer struct {
	runner  process.CommandRunner
	binPath string
	dpi     int
}

func NewRecognizer(runner process.CommandRunner, binPath string, dpi int) *Recognizer {
	if binPath == "" {
		binPath = defaultBinary
	}
	return &Recognizer{runner: runner, binPath: binPath, dpi: dpi}
}

func (r *Recognizer) Binary() string { return r.binPath }

func (r *Recognizer) Recognize(ctx context.Context, imagePath string, languages []string) (string, error) {
	args := []string{imagePath, "stdout"}
	if len(languages) > 0 {
		args = append(args, "-l", strings.Join(languages, "+"))
	}
	if r.dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(r.dpi))
	}
	out, err := r.runner.Run(ctx, r.binPath, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

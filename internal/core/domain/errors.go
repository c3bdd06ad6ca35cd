package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	ErrFileNotFound     = errors.New("file not found")
	ErrToolNotFound     = errors.New("tool not found")
	ErrToolInvocation   = errors.New("tool invocation failed")
	ErrNoPagesRendered  = errors.New("no pages rendered")
	ErrIncompleteRender = errors.New("incomplete page render")
	ErrOCREmptyResult   = errors.New("ocr produced no text")
	ErrTimeout          = errors.New("timeout")
)

// ErrorKind is the stable classification stored next to the free-text extraction error.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindDocumentNotFound ErrorKind = "document_not_found"
	KindFileNotFound     ErrorKind = "file_not_found"
	KindToolNotFound     ErrorKind = "tool_not_found"
	KindToolInvocation   ErrorKind = "tool_invocation"
	KindNoPagesRendered  ErrorKind = "no_pages_rendered"
	KindIncompleteRender ErrorKind = "incomplete_render"
	KindOCREmptyResult   ErrorKind = "ocr_empty_result"
	KindTimeout          ErrorKind = "timeout"
	KindInternal         ErrorKind = "internal"
)

// Order matters: a timed-out tool call carries both ErrTimeout and the tool context.
var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindDocumentNotFound, ErrDocumentNotFound},
	{KindTimeout, ErrTimeout},
	{KindFileNotFound, ErrFileNotFound},
	{KindToolNotFound, ErrToolNotFound},
	{KindToolInvocation, ErrToolInvocation},
	{KindNoPagesRendered, ErrNoPagesRendered},
	{KindIncompleteRender, ErrIncompleteRender},
	{KindOCREmptyResult, ErrOCREmptyResult},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf maps an error to its ErrorKind. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

func ParseErrorKind(raw string) ErrorKind {
	kind := ErrorKind(raw)
	if kind == KindNone || kind == KindInternal {
		return kind
	}
	for _, s := range kindSentinels {
		if s.kind == kind {
			return kind
		}
	}
	return KindInternal
}

package domain

import (
	"fmt"
	"time"
)

type ExtractStatus string

const (
	StatusPending    ExtractStatus = "pending"
	StatusProcessing ExtractStatus = "processing"
	StatusDone       ExtractStatus = "done"
	StatusFailed     ExtractStatus = "failed"
)

func ParseExtractStatus(raw string) (ExtractStatus, error) {
	status := ExtractStatus(raw)
	if !status.Valid() {
		return "", WrapError(ErrInvalidInput, "parse extract status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

func (s ExtractStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

func (s ExtractStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether the orchestrator may move a document from s to next.
// Terminal states may re-enter processing on a new dispatch. Overlapping
// attempts on one id each commit their own outcome, so processing may re-enter
// itself and a terminal state may be overwritten by another terminal commit:
// the last commit wins. Pending only ever leaves through processing.
func (s ExtractStatus) CanTransition(next ExtractStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing, StatusDone, StatusFailed:
		return next == StatusProcessing || next.IsTerminal()
	default:
		return false
	}
}

// Metadata is the registry tagging captured at upload time.
type Metadata struct {
	Division        string `json:"division,omitempty"`
	CaseType        string `json:"case_type,omitempty"`
	Judge           string `json:"judge,omitempty"`
	CaseNumber      string `json:"case_number,omitempty"`
	JudgementNumber string `json:"judgement_number,omitempty"`
}

type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
	Metadata

	ContentText      *string       `json:"content_text"`
	ExtractStatus    ExtractStatus `json:"extract_status"`
	ExtractError     *string       `json:"extract_error"`
	ExtractErrorKind ErrorKind     `json:"extract_error_kind,omitempty"`
	ExtractStartedAt *time.Time    `json:"extract_started_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckInvariant verifies the terminal-state pairing of text and error.
func (d *Document) CheckInvariant() error {
	switch d.ExtractStatus {
	case StatusDone:
		if d.ContentText == nil || d.ExtractError != nil {
			return fmt.Errorf("document %s: done requires text and no error", d.ID)
		}
	case StatusFailed:
		if d.ContentText != nil || d.ExtractError == nil {
			return fmt.Errorf("document %s: failed requires error and no text", d.ID)
		}
	case StatusPending, StatusProcessing:
	default:
		return fmt.Errorf("document %s: unknown status %q", d.ID, d.ExtractStatus)
	}
	return nil
}

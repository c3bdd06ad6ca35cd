package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/court-registry/internal/config"
	"github.com/kirillkom/court-registry/internal/core/domain"
)

type ingestErrFake struct {
	stored *domain.Document
	err    error
}

func (f ingestErrFake) Upload(context.Context, string, string, domain.Metadata, io.Reader) (*domain.Document, error) {
	return f.stored, f.err
}

func (f ingestErrFake) Reextract(context.Context, string) error { return f.err }

type docsErrFake struct {
	err error
}

func (f docsErrFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	text := "Hello world"
	return &domain.Document{ID: id, Filename: "a.pdf", FilePath: id + "_a.pdf", ContentText: &text, ExtractStatus: domain.StatusDone}, nil
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	handler := NewRouter(
		config.Config{},
		ingestErrFake{},
		docsErrFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))},
		nil,
	).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestReextractMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusAccepted},
		{domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("no servers")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := NewRouter(config.Config{}, ingestErrFake{err: tc.err}, docsErrFake{}, nil).Handler()

		req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/extract", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if res.Code != tc.want {
			t.Fatalf("err=%v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}

func TestUnknownMethodIsRejected(t *testing.T) {
	handler := NewRouter(config.Config{}, ingestErrFake{}, docsErrFake{}, nil).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

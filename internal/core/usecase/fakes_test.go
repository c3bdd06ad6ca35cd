package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

type repoCall struct {
	op     string
	id     string
	text   string
	kind   domain.ErrorKind
	errMsg string
}

// memRepo is an in-memory document store that records every write.
type memRepo struct {
	mu    sync.Mutex
	docs  map[string]*domain.Document
	calls []repoCall

	createErr   error
	getErr      error
	markErr     error
	commitErr   error
	commitFails int

	// dispatched mirrors the dispatched_at column.
	dispatched  map[string]time.Time
	claimCutoff time.Time
	now         func() time.Time
}

func newMemRepo(docs ...*domain.Document) *memRepo {
	r := &memRepo{docs: map[string]*domain.Document{}, dispatched: map[string]time.Time{}}
	for _, doc := range docs {
		copyDoc := *doc
		r.docs[doc.ID] = &copyDoc
	}
	return r
}

func (r *memRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, repoCall{op: "create", id: doc.ID})
	if r.createErr != nil {
		return r.createErr
	}
	copyDoc := *doc
	r.docs[doc.ID] = &copyDoc
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *memRepo) MarkProcessing(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, repoCall{op: "processing", id: id})
	if r.markErr != nil {
		return r.markErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "mark processing", fmt.Errorf("id=%s", id))
	}
	if !doc.ExtractStatus.CanTransition(domain.StatusProcessing) {
		return fmt.Errorf("illegal transition %s -> processing", doc.ExtractStatus)
	}
	now := time.Now()
	doc.ExtractStatus = domain.StatusProcessing
	doc.ExtractError = nil
	doc.ExtractErrorKind = domain.KindNone
	doc.ExtractStartedAt = &now
	return nil
}

func (r *memRepo) CompleteExtraction(_ context.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, repoCall{op: "done", id: id, text: text})
	if err := r.commitError(); err != nil {
		return err
	}
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "complete extraction", fmt.Errorf("id=%s", id))
	}
	if !doc.ExtractStatus.CanTransition(domain.StatusDone) {
		return fmt.Errorf("illegal transition %s -> done", doc.ExtractStatus)
	}
	doc.ExtractStatus = domain.StatusDone
	doc.ContentText = &text
	doc.ExtractError = nil
	doc.ExtractErrorKind = domain.KindNone
	return nil
}

func (r *memRepo) FailExtraction(_ context.Context, id string, kind domain.ErrorKind, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, repoCall{op: "failed", id: id, kind: kind, errMsg: message})
	if err := r.commitError(); err != nil {
		return err
	}
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "fail extraction", fmt.Errorf("id=%s", id))
	}
	if !doc.ExtractStatus.CanTransition(domain.StatusFailed) {
		return fmt.Errorf("illegal transition %s -> failed", doc.ExtractStatus)
	}
	doc.ExtractStatus = domain.StatusFailed
	doc.ContentText = nil
	doc.ExtractError = &message
	doc.ExtractErrorKind = kind
	return nil
}

func (r *memRepo) ClaimStalled(_ context.Context, idleBefore time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimCutoff = idleBefore
	if r.getErr != nil {
		return nil, r.getErr
	}

	type stalled struct {
		id        string
		idleSince time.Time
	}
	var found []stalled
	for id, doc := range r.docs {
		if doc.ExtractStatus != domain.StatusPending && doc.ExtractStatus != domain.StatusProcessing {
			continue
		}
		last := doc.CreatedAt
		if doc.ExtractStartedAt != nil && doc.ExtractStartedAt.After(last) {
			last = *doc.ExtractStartedAt
		}
		if at, ok := r.dispatched[id]; ok && at.After(last) {
			last = at
		}
		if last.Before(idleBefore) {
			found = append(found, stalled{id: id, idleSince: last})
		}
	}
	slices.SortFunc(found, func(a, b stalled) int {
		if c := a.idleSince.Compare(b.idleSince); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	ids := make([]string, 0, len(found))
	for _, st := range found[:min(limit, len(found))] {
		r.dispatched[st.id] = now
		ids = append(ids, st.id)
	}
	return ids, nil
}

func (r *memRepo) commitError() error {
	if r.commitFails > 0 {
		r.commitFails--
		return r.commitErr
	}
	return nil
}

func (r *memRepo) doc(id string) *domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

func (r *memRepo) writes() []repoCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]repoCall(nil), r.calls...)
}

type storageFake struct {
	files     map[string]string
	saved     map[string]string
	deleted   []string
	saveErr   error
	resolveFn func(key string) (string, error)
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	delete(f.saved, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *storageFake) Resolve(_ context.Context, key string) (string, error) {
	if f.resolveFn != nil {
		return f.resolveFn(key)
	}
	path, ok := f.files[key]
	if !ok {
		return "", domain.WrapError(domain.ErrFileNotFound, "resolve file", fmt.Errorf("/srv/registry/%s", key))
	}
	return path, nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
	failOn    string
}

func (f *queueFake) PublishExtractionRequested(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && (f.failOn == "" || f.failOn == documentID) {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeExtractionRequested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type extractorFake struct {
	texts []string
	errs  []error
	calls int
}

func (f *extractorFake) ExtractText(context.Context, string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.texts) {
		return f.texts[i], nil
	}
	return "", nil
}

type ocrFake struct {
	text  string
	err   error
	calls int
	block bool
}

func (f *ocrFake) OCR(ctx context.Context, _ string) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type metricsFake struct {
	mu        sync.Mutex
	started   int
	finished  []domain.ExtractStatus
	kinds     []domain.ErrorKind
	fallbacks int
}

func (m *metricsFake) StartExtraction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *metricsFake) FinishExtraction(status domain.ExtractStatus, kind domain.ErrorKind, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
	m.kinds = append(m.kinds, kind)
}

func (m *metricsFake) ObserveOCRFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

func (m *metricsFake) ObserveQueueLag(time.Duration) {}

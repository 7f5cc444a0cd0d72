package validation

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
)

type stubClient struct {
	processFn   func(ctx context.Context, files []pila.File) (map[string]pila.ValidationRecord, error)
	matchFn     func(ctx context.Context, files []pila.File, ids []int64) (map[string]pila.MatchEntry, error)
	processV2Fn func(ctx context.Context, files []pila.File, ids []int64) (*pila.ProcessV2Response, error)
	exportFn    func(ctx context.Context, files []pila.File) ([]byte, error)
}

func (s *stubClient) Process(ctx context.Context, files []pila.File) (map[string]pila.ValidationRecord, error) {
	return s.processFn(ctx, files)
}

func (s *stubClient) MatchLog(ctx context.Context, files []pila.File, ids []int64) (map[string]pila.MatchEntry, error) {
	return s.matchFn(ctx, files, ids)
}

func (s *stubClient) ProcessV2(ctx context.Context, files []pila.File, ids []int64) (*pila.ProcessV2Response, error) {
	return s.processV2Fn(ctx, files, ids)
}

func (s *stubClient) ExportExcel(ctx context.Context, files []pila.File) ([]byte, error) {
	return s.exportFn(ctx, files)
}

func (s *stubClient) Extract400(ctx context.Context, files []pila.File) ([]byte, error) {
	return s.exportFn(ctx, files)
}

func (s *stubClient) ListExtracts(context.Context) ([]pila.Extract, error) {
	return []pila.Extract{{ID: 1, Nombre: "corriente"}}, nil
}

type stubEnqueuer struct {
	batchID string
	files   int
}

func (s *stubEnqueuer) EnqueueLedgerUpload(_ context.Context, batchID string, files []pila.File) error {
	s.batchID = batchID
	s.files = len(files)
	return nil
}

func uploadRequest(t *testing.T, target string, filenames []string, extractIDs []string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range filenames {
		part, err := writer.CreateFormFile("archivos", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte("contenido"))
	}
	for _, id := range extractIDs {
		_ = writer.WriteField("extractos", id)
	}
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	sess := &shared.Session{ID: "sess-1"}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func newTestHandler(client Client, store *Store, enq LedgerEnqueuer) *Handler {
	return NewHandler(nil, client, store, nil, shared.NewCSRFManager("secret"), enq)
}

func mount(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/validaciones", h.MountRoutes)
	return r
}

func TestProcessMergesAndStoresBatch(t *testing.T) {
	client := &stubClient{
		processFn: func(_ context.Context, files []pila.File) (map[string]pila.ValidationRecord, error) {
			if len(files) != 2 {
				t.Fatalf("non-txt upload must be filtered, got %d files", len(files))
			}
			return map[string]pila.ValidationRecord{
				"a.txt": {R04: &pila.RuleResult{Valido: true}},
				"b.txt": {R04: &pila.RuleResult{Valido: false}},
			}, nil
		},
		matchFn: func(_ context.Context, _ []pila.File, ids []int64) (map[string]pila.MatchEntry, error) {
			if len(ids) != 1 || ids[0] != 7 {
				t.Fatalf("unexpected extract ids %v", ids)
			}
			return map[string]pila.MatchEntry{
				"a.txt": {MatchLog: &pila.MatchResult{Valido: true}},
			}, nil
		},
	}
	store := NewStore()
	h := newTestHandler(client, store, nil)

	req := uploadRequest(t, "/validaciones/procesar", []string{"a.txt", "b.txt", "nota.pdf"}, []string{"7"})
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	batch := store.Get("sess-1")
	if batch == nil || len(batch.Records) != 2 {
		t.Fatalf("expected stored batch with 2 records, got %+v", batch)
	}
	if batch.Records["a.txt"].MatchLog == nil {
		t.Fatal("match outcome not merged")
	}
	if batch.Records["b.txt"].MatchLog != nil {
		t.Fatal("file absent from match source must carry nil match_log")
	}
}

func TestProcessPartialFailureDiscardsEverything(t *testing.T) {
	client := &stubClient{
		processFn: func(_ context.Context, _ []pila.File) (map[string]pila.ValidationRecord, error) {
			return map[string]pila.ValidationRecord{"a.txt": {}}, nil
		},
		matchFn: func(context.Context, []pila.File, []int64) (map[string]pila.MatchEntry, error) {
			return nil, errors.New("pila api /log-match-bd: 500 Internal Server Error")
		},
	}
	store := NewStore()
	h := newTestHandler(client, store, nil)

	req := uploadRequest(t, "/validaciones/procesar", []string{"a.txt"}, []string{"7"})
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if store.Get("sess-1") != nil {
		t.Fatal("partial failure must not leave a stored batch")
	}
	sess := shared.SessionFromContext(req.Context())
	flash := sess.PopFlash()
	if flash == nil || flash.Kind != "error" {
		t.Fatalf("expected error flash, got %+v", flash)
	}
}

func TestProcessRequiresExtractSelection(t *testing.T) {
	called := false
	client := &stubClient{
		processFn: func(context.Context, []pila.File) (map[string]pila.ValidationRecord, error) {
			called = true
			return nil, nil
		},
		matchFn: func(context.Context, []pila.File, []int64) (map[string]pila.MatchEntry, error) {
			called = true
			return nil, nil
		},
	}
	h := newTestHandler(client, NewStore(), nil)

	req := uploadRequest(t, "/validaciones/procesar", []string{"a.txt"}, nil)
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if called {
		t.Fatal("remote must not be called without extract selection")
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
}

func TestProcessV2StoresTotalsAndEnqueuesLedgerUpload(t *testing.T) {
	client := &stubClient{
		processV2Fn: func(_ context.Context, files []pila.File, ids []int64) (*pila.ProcessV2Response, error) {
			return &pila.ProcessV2Response{
				Results: map[string]pila.ValidationRecord{
					"a.txt": {MatchLog: &pila.MatchResult{Valido: true}},
				},
				MissingUsers:   []pila.MissingUser{{NumDocumento: "123", SiafpSeveridad: "A"}},
				TotalAcreditar: 900,
				TotalRezagos:   100,
			}, nil
		},
	}
	store := NewStore()
	enq := &stubEnqueuer{}
	h := newTestHandler(client, store, enq)

	req := uploadRequest(t, "/validaciones/v2/procesar", []string{"a.txt"}, []string{"3"})
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	batch := store.Get("sess-1")
	if batch == nil || batch.TotalAcreditar != 900 || batch.TotalRezagos != 100 {
		t.Fatalf("totals not stored: %+v", batch)
	}
	if len(batch.MissingUsers) != 1 {
		t.Fatal("missing users not stored")
	}
	if enq.batchID != batch.ID || enq.files != 1 {
		t.Fatalf("ledger upload not enqueued for batch, got %+v", enq)
	}
}

func TestNewSubmissionReplacesBatchWholesale(t *testing.T) {
	store := NewStore()
	store.Replace("sess-1", &Batch{ID: "old", Records: map[string]pila.ValidationRecord{
		"viejo.txt": {},
	}})
	client := &stubClient{
		processFn: func(context.Context, []pila.File) (map[string]pila.ValidationRecord, error) {
			return map[string]pila.ValidationRecord{"nuevo.txt": {}}, nil
		},
		matchFn: func(context.Context, []pila.File, []int64) (map[string]pila.MatchEntry, error) {
			return nil, nil
		},
	}
	h := newTestHandler(client, store, nil)

	req := uploadRequest(t, "/validaciones/procesar", []string{"nuevo.txt"}, []string{"1"})
	mount(h).ServeHTTP(httptest.NewRecorder(), req)

	batch := store.Get("sess-1")
	if batch.ID == "old" {
		t.Fatal("new submission must replace the old batch")
	}
	if _, ok := batch.Records["viejo.txt"]; ok {
		t.Fatal("old records must be gone")
	}
}

func TestExportWithoutBatchRedirects(t *testing.T) {
	h := newTestHandler(&stubClient{}, NewStore(), nil)
	req := httptest.NewRequest(http.MethodPost, "/validaciones/exportar", nil)
	sess := &shared.Session{ID: "sess-1"}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
}

func TestExportSendsStoredFiles(t *testing.T) {
	store := NewStore()
	store.Replace("sess-1", &Batch{ID: "b1", Files: []pila.File{{Name: "a.txt", Content: []byte("x")}}})
	client := &stubClient{
		exportFn: func(_ context.Context, files []pila.File) ([]byte, error) {
			if len(files) != 1 || files[0].Name != "a.txt" {
				t.Fatalf("export must re-send stored files, got %v", files)
			}
			return []byte("xlsx"), nil
		},
	}
	h := newTestHandler(client, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/validaciones/exportar", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{ID: "sess-1"}))
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Disposition") == "" {
		t.Fatal("expected attachment disposition")
	}
	if rec.Body.String() != "xlsx" {
		t.Fatal("blob must pass through untouched")
	}
}

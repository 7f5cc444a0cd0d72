package extracts

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

type stubClient struct {
	uploaded  []string
	recordsFn func(ctx context.Context, id int64, page, pageSize int, filters map[string]any) (*pila.LogPage, error)
}

func (s *stubClient) ListExtracts(context.Context) ([]pila.Extract, error) {
	return []pila.Extract{{ID: 4, Nombre: "corriente"}}, nil
}

func (s *stubClient) UploadExtract(_ context.Context, nombre, _ string, _ pila.File) error {
	s.uploaded = append(s.uploaded, nombre)
	return nil
}

func (s *stubClient) ExtractRecords(ctx context.Context, id int64, page, pageSize int, filters map[string]any) (*pila.LogPage, error) {
	if s.recordsFn != nil {
		return s.recordsFn(ctx, id, page, pageSize, filters)
	}
	return &pila.LogPage{}, nil
}

func uploadRequest(t *testing.T, nombre, filename string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte("contenido"))
	}
	_ = writer.WriteField("nombre", nombre)
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/extractos/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{ID: "s1"}))
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/extractos", h.MountRoutes)
	return r
}

func TestUploadRequiresName(t *testing.T) {
	client := &stubClient{}
	h := NewHandler(nil, client, nil, shared.NewCSRFManager("secret"))

	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, uploadRequest(t, "", "extracto.csv"))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if len(client.uploaded) != 0 {
		t.Fatal("invalid form must not reach the remote API")
	}
}

func TestUploadHappyPath(t *testing.T) {
	client := &stubClient{}
	h := NewHandler(nil, client, nil, shared.NewCSRFManager("secret"))

	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, uploadRequest(t, "extracto agosto", "extracto.csv"))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if len(client.uploaded) != 1 || client.uploaded[0] != "extracto agosto" {
		t.Fatalf("upload did not reach the client, got %v", client.uploaded)
	}
}

func TestRecordsQuerierThreadsSelectorAndFilters(t *testing.T) {
	var gotID int64
	var gotFilters map[string]any
	client := &stubClient{
		recordsFn: func(_ context.Context, id int64, page, pageSize int, filters map[string]any) (*pila.LogPage, error) {
			gotID = id
			gotFilters = filters
			return &pila.LogPage{Data: []pila.LogRow{{"id": 1}}, TotalRecords: 1, TotalPages: 1}, nil
		},
	}
	q := recordsQuerier{client: client}
	page, err := q.QueryLog(context.Background(), 1, 20, map[string]any{"extracto_id": "4", "valor_min": 100.0})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if gotID != 4 {
		t.Fatalf("expected extract id 4, got %d", gotID)
	}
	if _, ok := gotFilters["extracto_id"]; ok {
		t.Fatal("selector must not leak into the remote filter body")
	}
	if gotFilters["valor_min"] != 100.0 {
		t.Fatalf("filters not forwarded, got %#v", gotFilters)
	}
	if page.TotalRecords != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestRecordsQuerierRejectsMissingSelector(t *testing.T) {
	q := recordsQuerier{client: &stubClient{}}
	if _, err := q.QueryLog(context.Background(), 1, 20, map[string]any{}); err == nil {
		t.Fatal("expected error without selector")
	}
}

func TestRecordsPageShowsDirectiveWithoutSelection(t *testing.T) {
	engine, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	h := NewHandler(nil, &stubClient{}, engine, shared.NewCSRFManager("secret"))

	req := httptest.NewRequest(http.MethodGet, "/extractos/registros", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{ID: "s1"}))
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Seleccione un extracto")) {
		t.Fatal("expected directive message on page")
	}
}

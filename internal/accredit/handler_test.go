package accredit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

type stubClient struct {
	saldos    []pila.Saldo
	pilas     []pila.Pila
	saldosErr error
	gotIDs    []int64
	accErr    error
}

func (s *stubClient) Saldos(context.Context) ([]pila.Saldo, error) {
	if s.saldosErr != nil {
		return nil, s.saldosErr
	}
	return s.saldos, nil
}

func (s *stubClient) PilasConConciliacion(context.Context) ([]pila.Pila, error) {
	return s.pilas, nil
}

func (s *stubClient) Acreditar(_ context.Context, ids []int64) error {
	s.gotIDs = ids
	return s.accErr
}

func newTestHandler(t *testing.T, client Client) *Handler {
	t.Helper()
	engine, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	return NewHandler(nil, client, engine, shared.NewCSRFManager("secret"))
}

func mount(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/acreditacion", h.MountRoutes)
	return r
}

func withSession(req *http.Request) *http.Request {
	return req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{ID: "sess-1"}))
}

func TestPageRendersBalancesAndPendingCount(t *testing.T) {
	client := &stubClient{
		saldos: []pila.Saldo{{Fondo: "Obligatorio", SaldoOperacional: 100, SaldoRezagos: 5}},
		pilas: []pila.Pila{
			{ID: 1, Conciliacion: &pila.PilaConciliacion{Acreditada: false}},
			{ID: 2, Conciliacion: &pila.PilaConciliacion{Acreditada: true}},
			{ID: 3},
		},
	}
	h := newTestHandler(t, client)

	req := withSession(httptest.NewRequest(http.MethodGet, "/acreditacion", nil))
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Obligatorio") {
		t.Fatal("balances missing from page")
	}
}

func TestPagePartialFailureShowsError(t *testing.T) {
	client := &stubClient{saldosErr: errors.New("pila api /saldos-afp: 500 Internal Server Error")}
	h := newTestHandler(t, client)

	req := withSession(httptest.NewRequest(http.MethodGet, "/acreditacion", nil))
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("panel failure must still render, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No se pudo cargar") {
		t.Fatal("expected inline error message")
	}
}

func TestAccreditSendsSelectedIDs(t *testing.T) {
	client := &stubClient{}
	h := newTestHandler(t, client)

	form := url.Values{"pila_ids": {"4", "9", "no-num"}}
	req := httptest.NewRequest(http.MethodPost, "/acreditacion/acreditar", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = withSession(req)
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if len(client.gotIDs) != 2 || client.gotIDs[0] != 4 || client.gotIDs[1] != 9 {
		t.Fatalf("unexpected ids %v", client.gotIDs)
	}
}

func TestAccreditRequiresSelection(t *testing.T) {
	client := &stubClient{}
	h := newTestHandler(t, client)

	req := httptest.NewRequest(http.MethodPost, "/acreditacion/acreditar", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = withSession(req)
	rec := httptest.NewRecorder()
	mount(h).ServeHTTP(rec, req)

	if client.gotIDs != nil {
		t.Fatal("remote must not be called without selection")
	}
	sess := shared.SessionFromContext(req.Context())
	if flash := sess.PopFlash(); flash == nil || flash.Kind != "error" {
		t.Fatalf("expected error flash, got %+v", flash)
	}
}

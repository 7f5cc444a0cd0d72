package logquery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
)

func TestRegistryReturnsSameControllerPerSession(t *testing.T) {
	q := &stubQuerier{fn: func(context.Context, int, int, map[string]any) (*pila.LogPage, error) {
		return pageOf(), nil
	}}
	reg := NewRegistry(func() *Controller { return NewController(q, 50, WithDebounce(0)) })
	a := reg.For("s1")
	if reg.For("s1") != a {
		t.Fatal("same session must get the same controller")
	}
	if reg.For("s2") == a {
		t.Fatal("different session must get its own controller")
	}
}

func TestHandleFiltersWhitelistsKeys(t *testing.T) {
	var gotFilters map[string]any
	q := &stubQuerier{fn: func(_ context.Context, _, _ int, filters map[string]any) (*pila.LogPage, error) {
		gotFilters = filters
		return pageOf(), nil
	}}
	reg := NewRegistry(func() *Controller { return NewController(q, 50, WithDebounce(0)) })
	h := NewHandler(nil, reg, nil, shared.NewCSRFManager("secret"))
	router := chi.NewRouter()
	router.Route("/logs", h.MountRoutes)

	form := url.Values{}
	form.Set("banco", "23")
	form.Set("csrf_token", "whatever")
	form.Set("malicioso", "x")
	req := httptest.NewRequest(http.MethodPost, "/logs/filtros", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{ID: "s1"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if gotFilters["banco"] != 23 {
		t.Fatalf("expected banco filter committed, got %#v", gotFilters)
	}
	if _, ok := gotFilters["malicioso"]; ok {
		t.Fatal("non-whitelisted key must be dropped")
	}
	if _, ok := gotFilters["csrf_token"]; ok {
		t.Fatal("csrf token must never reach the remote filter body")
	}
}

func TestHandlePaginationRedirectsWithoutFetchHeader(t *testing.T) {
	var gotPage int
	q := &stubQuerier{fn: func(_ context.Context, page, _ int, _ map[string]any) (*pila.LogPage, error) {
		gotPage = page
		return &pila.LogPage{TotalPages: 5}, nil
	}}
	reg := NewRegistry(func() *Controller { return NewController(q, 50, WithDebounce(0)) })
	h := NewHandler(nil, reg, nil, shared.NewCSRFManager("secret"))
	router := chi.NewRouter()
	router.Route("/logs", h.MountRoutes)

	form := url.Values{"page": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/logs/pagina", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{ID: "s1"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if gotPage != 3 {
		t.Fatalf("expected page 3 query, got %d", gotPage)
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect for non-fetch client, got %d", rec.Code)
	}
}

package view

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFormatCurrencyESCO(t *testing.T) {
	got := FormatCurrency(1234567.89)
	if got != "$ 1.234.567,89" {
		t.Fatalf("unexpected currency rendering %q", got)
	}
	if got := FormatCurrency(0); got != "$ 0,00" {
		t.Fatalf("unexpected zero rendering %q", got)
	}
}

func TestEngineRendersHome(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/home.html", TemplateData{Title: "Consola PILA"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Consola PILA") {
		t.Fatal("rendered page missing title")
	}
}

func TestNilEngineFails(t *testing.T) {
	var e *Engine
	if err := e.Render(httptest.NewRecorder(), "pages/home.html", TemplateData{}); err == nil {
		t.Fatal("nil engine must error")
	}
}

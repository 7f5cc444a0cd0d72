// Package view renders the console's HTML templates.
package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Data        any
}

var currencyPrinter = message.NewPrinter(language.MustParse("es-CO"))

// FormatCurrency renders a peso amount with es-CO grouping, e.g.
// "$ 1.234.567,89".
func FormatCurrency(v float64) string {
	return "$ " + currencyPrinter.Sprintf("%v",
		number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		// Remote timestamps arrive as strings; show the date part.
		"shortDate": func(s string) string {
			if len(s) >= 10 {
				return s[:10]
			}
			return s
		},
		"currency": FormatCurrency,
		"upper":    strings.ToUpper,
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		// ruleRow pairs a display label with a rule outcome for the
		// detail-page row template.
		"ruleRow": func(label string, rule any) map[string]any {
			return map[string]any{"Label": label, "Rule": rule}
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderPartial executes a named partial without the page chrome, used by
// the fragment endpoints the log table polls.
func (e *Engine) RenderPartial(w http.ResponseWriter, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

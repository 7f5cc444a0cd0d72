package logquery

import (
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/table"
	"github.com/puygroup/pila-console/internal/view"
)

// DefaultLogPageSize matches the page size the log table renders.
const DefaultLogPageSize = 50

// FilterKeys lists the accepted raw filter fields, matching the log table
// columns plus the range inputs.
var FilterKeys = []string{
	"banco", "fecha", "id", "razon_social", "planilla", "periodo",
	"tipo", "oper", "planilla_match",
	"valor_min", "valor_max", "fecha_inicio", "fecha_fin",
}

// Registry hands out one query controller per operator session. Controllers
// hold the debounce timer and in-flight request state, so they must survive
// across requests.
type Registry struct {
	mu          sync.Mutex
	controllers map[string]*Controller
	factory     func() *Controller
}

// NewRegistry builds a registry around a controller factory.
func NewRegistry(factory func() *Controller) *Registry {
	return &Registry{
		controllers: make(map[string]*Controller),
		factory:     factory,
	}
}

// For returns the session's controller, creating it on first use.
func (r *Registry) For(sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[sessionID]; ok {
		return c
	}
	c := r.factory()
	r.controllers[sessionID] = c
	return c
}

// Handler serves the financial log query page and its fragments.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs the log query handler.
func NewHandler(logger *slog.Logger, registry *Registry, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registry: registry, templates: templates, csrf: csrf}
}

// MountRoutes registers the log query endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handlePage)
	r.Get("/tabla", h.handleTableFragment)
	r.Post("/filtros", h.handleFilters)
	r.Post("/limpiar", h.handleClear)
	r.Post("/pagina", h.handlePage2)
}

func tableConfig() table.Config {
	currency := func(key string) func(table.Row) template.HTML {
		return func(row table.Row) template.HTML {
			v, ok := row[key].(float64)
			if !ok {
				return ""
			}
			return template.HTML(template.HTMLEscapeString(view.FormatCurrency(v)))
		}
	}
	return table.Config{
		Columns: []table.Column{
			{Key: "banco", Header: "Banco"},
			{Key: "fecha", Header: "Fecha"},
			{Key: "id", Header: "ID"},
			{Key: "razon_social", Header: "Razón Social"},
			{Key: "planilla", Header: "Planilla"},
			{Key: "periodo", Header: "Periodo"},
			{Key: "tipo", Header: "Tipo"},
			{Key: "oper", Header: "Oper"},
			{Key: "valor", Header: "Valor", CellClass: "num", Render: currency("valor")},
			{Key: "planilla_match", Header: "Planilla Match"},
		},
		EmptyMessage: "No se encontraron registros",
	}
}

type logPageVM struct {
	Filters   map[string]string
	Table     table.Model
	Error     string
	Directive string
}

func (h *Handler) viewModel(snap Snapshot) logPageVM {
	rows := make([]table.Row, len(snap.Rows))
	for i, r := range snap.Rows {
		rows[i] = table.Row(r)
	}
	cfg := tableConfig()
	return logPageVM{
		Filters:   snap.Raw,
		Table:     cfg.Controlled(rows, snap.Page, snap.TotalPages, snap.TotalRecords, snap.Loading),
		Error:     snap.ErrMessage,
		Directive: snap.Directive,
	}
}

func (h *Handler) controller(r *http.Request) *Controller {
	sess := shared.SessionFromContext(r.Context())
	id := "anonymous"
	if sess != nil {
		id = sess.ID
	}
	return h.registry.For(id)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Log Financiero",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        h.viewModel(ctrl.Snapshot()),
	}
	if err := h.templates.Render(w, "pages/logs.html", data); err != nil {
		h.logger.Error("render log page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// handleTableFragment serves the polled table partial. The static JS polls
// it while the controller reports loading.
func (h *Handler) handleTableFragment(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	if err := h.templates.RenderPartial(w, "partials/log_table.html", h.viewModel(ctrl.Snapshot())); err != nil {
		h.logger.Error("render log fragment", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// handleFilters records a raw filter edit. The commit itself happens after
// the debounce window, so this returns immediately.
func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	raw := make(map[string]string, len(FilterKeys))
	for _, key := range FilterKeys {
		if v := r.PostForm.Get(key); v != "" {
			raw[key] = v
		}
	}
	h.controller(r).SetFilters(raw)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.controller(r).ClearFilters()
	if r.Header.Get("X-Requested-With") == "fetch" {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Redirect(w, r, "/logs", http.StatusSeeOther)
}

func (h *Handler) handlePage2(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	page, err := strconv.Atoi(r.PostForm.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	h.controller(r).SetPage(page)
	if r.Header.Get("X-Requested-With") == "fetch" {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Redirect(w, r, "/logs", http.StatusSeeOther)
}

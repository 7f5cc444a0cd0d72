// Package concil serves the reconciliation-match browser: period and
// contributor filters with a running accreditation total.
package concil

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/platform/httpx"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

const (
	pageSize        = 15
	minSearchLength = 2
)

var periodoPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Client is the slice of the remote API the reconciliation browser uses.
type Client interface {
	Conciliaciones(ctx context.Context, page, pageSize int, periodo, razonSocial string) (*pila.ConcilPage, error)
	SearchAfiliados(ctx context.Context, search string) ([]string, error)
}

// Handler serves the reconciliation listing and the contributor
// autocomplete endpoint behind it.
type Handler struct {
	logger    *slog.Logger
	client    Client
	templates *view.Engine
	csrf      *shared.CSRFManager
}

func NewHandler(logger *slog.Logger, client Client, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, client: client, templates: templates, csrf: csrf}
}

// MountRoutes registers the reconciliation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handlePage)
	r.Get("/afiliados", h.handleAutocomplete)
}

type pageVM struct {
	Rows        []pila.Conciliacion
	Periodo     string
	RazonSocial string
	TotAcred    float64
	Pagination  shared.Pagination
	ErrMessage  string
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	periodo := strings.TrimSpace(q.Get("periodo"))
	if periodo != "" && !periodoPattern.MatchString(periodo) {
		periodo = ""
	}
	razonSocial := strings.TrimSpace(q.Get("razon_social"))

	vm := pageVM{Periodo: periodo, RazonSocial: razonSocial}
	result, err := h.client.Conciliaciones(r.Context(), page, pageSize, periodo, razonSocial)
	if err != nil {
		h.logger.Error("load conciliaciones", slog.Any("error", err))
		vm.ErrMessage = "No se pudieron cargar las conciliaciones"
		result = &pila.ConcilPage{}
	}
	vm.Rows = result.Data
	vm.TotAcred = result.TotAcred
	vm.Pagination = shared.NewPagination(page, pageSize, result.Total)

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Conciliaciones",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/conciliaciones.html", data); err != nil {
		h.logger.Error("render conciliaciones", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// handleAutocomplete proxies contributor-name suggestions for the search
// box. Short prefixes return an empty list without hitting the remote.
func (h *Handler) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	if len(search) < minSearchLength {
		httpx.JSON(w, http.StatusOK, []string{})
		return
	}
	names, err := h.client.SearchAfiliados(r.Context(), search)
	if err != nil {
		h.logger.Error("search afiliados", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUpstream)
		return
	}
	if names == nil {
		names = []string{}
	}
	httpx.JSON(w, http.StatusOK, names)
}

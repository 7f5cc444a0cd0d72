package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

const (
	defaultLimit = 25
	maxLimit     = 200
)

// Feed is the read slice of the ledger service the page depends on.
type Feed interface {
	Transactions(ctx context.Context, limit int) ([]Transaction, error)
	Proofs(ctx context.Context, limit int) ([]Proof, error)
}

// Handler serves the ledger audit page with its transactions and proofs
// tabs.
type Handler struct {
	logger    *slog.Logger
	feed      Feed
	templates *view.Engine
	csrf      *shared.CSRFManager
}

func NewHandler(logger *slog.Logger, feed Feed, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, feed: feed, templates: templates, csrf: csrf}
}

// MountRoutes registers the ledger page.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handlePage)
}

type pageVM struct {
	Tab          string
	Limit        int
	Transactions []Transaction
	Proofs       []Proof
	ErrMessage   string
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tab := q.Get("tab")
	if tab != "proofs" {
		tab = "transactions"
	}

	vm := pageVM{Tab: tab, Limit: limit}
	var err error
	if tab == "proofs" {
		vm.Proofs, err = h.feed.Proofs(r.Context(), limit)
	} else {
		vm.Transactions, err = h.feed.Transactions(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("load ledger feed", slog.Any("error", err))
		vm.ErrMessage = "No se pudo consultar el servicio de ledger"
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Ledger",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/ledger.html", data); err != nil {
		h.logger.Error("render ledger", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

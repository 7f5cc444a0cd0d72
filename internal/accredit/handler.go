// Package accredit serves the balances panel and the bulk accreditation of
// reconciled declarations.
package accredit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

// Client is the slice of the remote API the accreditation panel uses.
type Client interface {
	Saldos(ctx context.Context) ([]pila.Saldo, error)
	PilasConConciliacion(ctx context.Context) ([]pila.Pila, error)
	Acreditar(ctx context.Context, pilaIDs []int64) error
}

// Handler serves the balances cards and the accreditation action.
type Handler struct {
	logger    *slog.Logger
	client    Client
	templates *view.Engine
	csrf      *shared.CSRFManager
	validate  *validator.Validate
}

func NewHandler(logger *slog.Logger, client Client, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		client:    client,
		templates: templates,
		csrf:      csrf,
		validate:  validator.New(),
	}
}

// MountRoutes registers the accreditation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handlePage)
	r.Post("/acreditar", h.handleAccredit)
}

type pageVM struct {
	Saldos     []pila.Saldo
	Pilas      []pila.Pila
	Pending    int
	ErrMessage string
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	vm := pageVM{}

	// Balances and the declaration list load together; a failure of
	// either empties the panel rather than showing half the picture.
	var (
		saldos []pila.Saldo
		pilas  []pila.Pila
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		saldos, err = h.client.Saldos(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pilas, err = h.client.PilasConConciliacion(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("load accreditation panel", slog.Any("error", err))
		vm.ErrMessage = "No se pudo cargar el panel de acreditación"
	} else {
		vm.Saldos = saldos
		vm.Pilas = pilas
		for _, p := range pilas {
			if p.Pending() {
				vm.Pending++
			}
		}
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Acreditación",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/acreditacion.html", data); err != nil {
		h.logger.Error("render acreditacion", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type accreditForm struct {
	PilaIDs []int64 `validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) handleAccredit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var ids []int64
	for _, raw := range r.PostForm["pila_ids"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := h.validate.Struct(accreditForm{PilaIDs: ids}); err != nil {
		h.flashError(r, "Seleccione al menos una planilla para acreditar")
		http.Redirect(w, r, "/acreditacion", http.StatusSeeOther)
		return
	}
	if err := h.client.Acreditar(r.Context(), ids); err != nil {
		h.logger.Error("acreditar", slog.Any("error", err))
		h.flashError(r, err.Error())
		http.Redirect(w, r, "/acreditacion", http.StatusSeeOther)
		return
	}
	h.flashSuccess(r, fmt.Sprintf("Se acreditaron %d planillas", len(ids)))
	http.Redirect(w, r, "/acreditacion", http.StatusSeeOther)
}

func (h *Handler) flashError(r *http.Request, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: msg})
	}
}

func (h *Handler) flashSuccess(r *http.Request, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: msg})
	}
}

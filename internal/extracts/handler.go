// Package extracts serves bank-extract management: listing, upload and the
// paginated record browser.
package extracts

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/puygroup/pila-console/internal/logquery"
	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/table"
	"github.com/puygroup/pila-console/internal/view"
)

const (
	maxUploadBytes  = 32 << 20
	recordsPageSize = 20
)

// Client is the slice of the remote API this page depends on.
type Client interface {
	ListExtracts(ctx context.Context) ([]pila.Extract, error)
	UploadExtract(ctx context.Context, nombre, descripcion string, file pila.File) error
	ExtractRecords(ctx context.Context, extractID int64, page, pageSize int, filters map[string]any) (*pila.LogPage, error)
}

// recordsQuerier adapts the per-extract record endpoint to the generic
// query controller. The extract selector travels as a raw filter so the
// controller's required-selector convention applies.
type recordsQuerier struct {
	client Client
}

func (q recordsQuerier) QueryLog(ctx context.Context, page, pageSize int, filters map[string]any) (*pila.LogPage, error) {
	raw, _ := filters["extracto_id"].(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("extracto_id invalido: %q", raw)
	}
	delete(filters, "extracto_id")
	return q.client.ExtractRecords(ctx, id, page, pageSize, filters)
}

type uploadForm struct {
	Nombre      string `validate:"required,min=3,max=120"`
	Descripcion string `validate:"max=500"`
}

// Handler serves the extract pages.
type Handler struct {
	logger    *slog.Logger
	client    Client
	registry  *logquery.Registry
	templates *view.Engine
	csrf      *shared.CSRFManager
	validate  *validator.Validate
}

// NewHandler constructs the extracts handler. Record browsing runs through
// one query controller per session, committing selector changes without a
// debounce window.
func NewHandler(logger *slog.Logger, client Client, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	registry := logquery.NewRegistry(func() *logquery.Controller {
		return logquery.NewController(recordsQuerier{client: client}, recordsPageSize,
			logquery.WithDebounce(0),
			logquery.WithRequiredFilter("extracto_id", "Seleccione un extracto para consultar sus registros"),
		)
	})
	return &Handler{
		logger:    logger,
		client:    client,
		registry:  registry,
		templates: templates,
		csrf:      csrf,
		validate:  validator.New(),
	}
}

// MountRoutes registers the extract endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handleList)
	r.Post("/upload", h.handleUpload)
	r.Get("/registros", h.handleRecords)
}

type listVM struct {
	Extracts []pila.Extract
	Error    string
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	vm := listVM{}
	extracts, err := h.client.ListExtracts(r.Context())
	if err != nil {
		h.logger.Error("list extracts", slog.Any("error", err))
		vm.Error = err.Error()
	}
	vm.Extracts = extracts

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Extractos Bancarios",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/extractos.html", data); err != nil {
		h.logger.Error("render extracts", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	flash := func(kind, msg string) {
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
		}
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		flash("error", "No se pudo leer el formulario")
		http.Redirect(w, r, "/extractos", http.StatusSeeOther)
		return
	}
	form := uploadForm{
		Nombre:      r.PostFormValue("nombre"),
		Descripcion: r.PostFormValue("descripcion"),
	}
	if err := h.validate.Struct(form); err != nil {
		flash("error", "El nombre del extracto es obligatorio")
		http.Redirect(w, r, "/extractos", http.StatusSeeOther)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		flash("error", "Seleccione el archivo del extracto")
		http.Redirect(w, r, "/extractos", http.StatusSeeOther)
		return
	}
	content, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		flash("error", "No se pudo leer el archivo")
		http.Redirect(w, r, "/extractos", http.StatusSeeOther)
		return
	}
	upload := pila.File{Name: header.Filename, Content: content}
	if err := h.client.UploadExtract(r.Context(), form.Nombre, form.Descripcion, upload); err != nil {
		h.logger.Error("upload extract", slog.Any("error", err))
		flash("error", err.Error())
		http.Redirect(w, r, "/extractos", http.StatusSeeOther)
		return
	}
	flash("success", "Extracto subido correctamente")
	http.Redirect(w, r, "/extractos", http.StatusSeeOther)
}

func recordsTableConfig() table.Config {
	currency := func(row table.Row) template.HTML {
		v, ok := row["valor"].(float64)
		if !ok {
			return ""
		}
		return template.HTML(template.HTMLEscapeString(view.FormatCurrency(v)))
	}
	return table.Config{
		Columns: []table.Column{
			{Key: "id", Header: "ID"},
			{Key: "fecha", Header: "Fecha"},
			{Key: "descripcion", Header: "Descripción"},
			{Key: "referencia", Header: "Referencia"},
			{Key: "valor", Header: "Valor", CellClass: "num", Render: currency},
		},
		EmptyMessage: "El extracto no tiene registros",
	}
}

type recordsVM struct {
	Extracts   []pila.Extract
	SelectedID string
	Table      table.Model
	Directive  string
	Error      string
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id := "anonymous"
	if sess != nil {
		id = sess.ID
	}
	ctrl := h.registry.For(id)

	query := r.URL.Query()
	selected := query.Get("extracto_id")
	if selected != ctrl.Snapshot().Raw["extracto_id"] {
		ctrl.SetFilter("extracto_id", selected)
	}
	if raw := query.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			ctrl.SetPage(page)
		}
	}

	snap := ctrl.Snapshot()
	rows := make([]table.Row, len(snap.Rows))
	for i, row := range snap.Rows {
		rows[i] = table.Row(row)
	}
	cfg := recordsTableConfig()
	vm := recordsVM{
		SelectedID: selected,
		Table:      cfg.Controlled(rows, snap.Page, snap.TotalPages, snap.TotalRecords, snap.Loading),
		Directive:  snap.Directive,
		Error:      snap.ErrMessage,
	}
	if extracts, err := h.client.ListExtracts(r.Context()); err == nil {
		vm.Extracts = extracts
	}

	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	data := view.TemplateData{
		Title:       "Registros de Extracto",
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/extracto_registros.html", data); err != nil {
		h.logger.Error("render extract records", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

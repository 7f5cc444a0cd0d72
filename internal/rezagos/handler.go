package rezagos

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

const (
	queuePageSize = 20

	// findTask walks the remote queue page by page; cap the scan so a
	// bogus id cannot turn into an unbounded crawl.
	scanPageSize = 100
	maxScanPages = 20
)

// Client is the slice of the remote API the correction queue depends on.
type Client interface {
	Rezagos(ctx context.Context, page, pageSize int, estado string) (*pila.RezagoPage, error)
	RezagosPlanoPago(ctx context.Context) ([]pila.Rezago, error)
	PlanoPagoExcel(ctx context.Context) ([]byte, error)
}

// MailEnqueuer schedules the outbound notification for external-severity
// tasks.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, to, subject, body string) error
}

// Handler serves the correction-task queue and its completion workflow.
type Handler struct {
	logger    *slog.Logger
	client    Client
	completed *CompletionStore
	mailer    MailEnqueuer
	templates *view.Engine
	csrf      *shared.CSRFManager
	validate  *validator.Validate
}

func NewHandler(logger *slog.Logger, client Client, completed *CompletionStore, mailer MailEnqueuer, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		client:    client,
		completed: completed,
		mailer:    mailer,
		templates: templates,
		csrf:      csrf,
		validate:  validator.New(),
	}
}

// MountRoutes registers the correction queue endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handleQueue)
	r.Post("/{id}/completar", h.handleComplete)
	r.Post("/{id}/reabrir", h.handleReopen)
	r.Get("/{id}/correo", h.handleEmailPreview)
	r.Post("/{id}/correo/confirmar", h.handleEmailConfirm)
	r.Post("/{id}/correo/cancelar", h.handleEmailCancel)
	r.Get("/plano-pago/excel", h.handlePlanoPagoExcel)
}

// TaskRow is one queue line annotated with its catalog classification.
type TaskRow struct {
	Task          pila.Rezago
	Severity      Severity
	SeverityLabel string
	Significado   string
	Accion        string
	NeedsEmail    bool
}

type queueVM struct {
	Rows       []TaskRow
	Estado     string
	Pagination shared.Pagination

	PlanoPago      []pila.Rezago
	PlanoPagoTotal float64
}

func (h *Handler) classify(task pila.Rezago) TaskRow {
	code := task.Detalles.Codigo
	if code == "" {
		code = task.CodigoError
	}
	entry := Lookup(code)
	row := TaskRow{
		Task:          task,
		Severity:      entry.Severidad,
		SeverityLabel: entry.Severidad.Label(),
		Significado:   entry.Significado,
		Accion:        entry.Accion,
		NeedsEmail:    entry.Severidad.RequiresEmail(),
	}
	// Upstream-supplied details win over the static catalog.
	if task.Detalles.Significado != "" {
		row.Significado = task.Detalles.Significado
	}
	if task.Detalles.Accion != "" {
		row.Accion = task.Detalles.Accion
	}
	return row
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	estado := r.URL.Query().Get("estado")

	result, err := h.client.Rezagos(r.Context(), page, queuePageSize, estado)
	if err != nil {
		h.logger.Error("load rezagos queue", slog.Any("error", err))
		h.flashError(r, "No se pudo cargar la cola de rezagos")
		result = &pila.RezagoPage{}
	}
	done, err := h.completed.Completed(r.Context())
	if err != nil {
		h.logger.Warn("load completed set", slog.Any("error", err))
	}

	vm := queueVM{
		Estado:     estado,
		Pagination: shared.NewPagination(page, queuePageSize, result.Total),
	}
	for _, task := range result.Data {
		if done[task.ID] {
			continue
		}
		vm.Rows = append(vm.Rows, h.classify(task))
	}

	plano, err := h.client.RezagosPlanoPago(r.Context())
	if err != nil {
		h.logger.Warn("load plano pago", slog.Any("error", err))
	}
	vm.PlanoPago = plano
	for _, task := range plano {
		vm.PlanoPagoTotal += task.Planilla.TotalCotizacion
	}

	h.render(w, r, "Rezagos", "pages/rezagos.html", vm)
}

// findTask locates one task by id in the remote queue.
func (h *Handler) findTask(ctx context.Context, id int64) (*pila.Rezago, error) {
	for page := 1; page <= maxScanPages; page++ {
		result, err := h.client.Rezagos(ctx, page, scanPageSize, "")
		if err != nil {
			return nil, err
		}
		for i := range result.Data {
			if result.Data[i].ID == id {
				return &result.Data[i], nil
			}
		}
		if page >= result.TotalPages {
			break
		}
	}
	return nil, shared.ErrNotFound
}

func (h *Handler) taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// handleComplete resolves a task. External-severity codes detour through
// the email confirmation page; everything else completes immediately.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	entry := Lookup(r.PostForm.Get("codigo"))
	if entry.Severidad.RequiresEmail() {
		http.Redirect(w, r, "/rezagos/"+strconv.FormatInt(id, 10)+"/correo?codigo="+entry.Codigo, http.StatusSeeOther)
		return
	}
	if err := h.completed.MarkCompleted(r.Context(), id); err != nil {
		h.logger.Error("mark completed", slog.Any("error", err))
		h.flashError(r, "No se pudo marcar el rezago como completado")
		http.Redirect(w, r, "/rezagos", http.StatusSeeOther)
		return
	}
	h.flashSuccess(r, "Rezago marcado como completado")
	http.Redirect(w, r, "/rezagos", http.StatusSeeOther)
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.completed.Reopen(r.Context(), id); err != nil {
		h.logger.Error("reopen task", slog.Any("error", err))
		h.flashError(r, "No se pudo reabrir el rezago")
	} else {
		h.flashSuccess(r, "Rezago reabierto")
	}
	http.Redirect(w, r, "/rezagos", http.StatusSeeOther)
}

type emailVM struct {
	Task    pila.Rezago
	Entry   CatalogEntry
	Subject string
	Body    string
}

func (h *Handler) handleEmailPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	task, err := h.findTask(r.Context(), id)
	if err != nil {
		h.logger.Error("find task for email", slog.Any("error", err))
		http.NotFound(w, r)
		return
	}
	code := r.URL.Query().Get("codigo")
	if code == "" {
		code = task.Detalles.Codigo
	}
	entry := Lookup(code)
	vm := emailVM{Task: *task, Entry: entry}
	if entry.Template != nil {
		vm.Subject = entry.Template.Subject
		vm.Body = entry.Template.Body
	}
	h.render(w, r, "Notificación Rezago", "pages/rezagos_correo.html", vm)
}

type emailForm struct {
	Destinatario string `validate:"required,email"`
	Asunto       string `validate:"required,min=3"`
	Cuerpo       string `validate:"required,min=10"`
}

// handleEmailConfirm enqueues the notification and only then marks the
// task as resolved.
func (h *Handler) handleEmailConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := emailForm{
		Destinatario: r.PostForm.Get("destinatario"),
		Asunto:       r.PostForm.Get("asunto"),
		Cuerpo:       r.PostForm.Get("cuerpo"),
	}
	if err := h.validate.Struct(form); err != nil {
		h.flashError(r, "Revise el destinatario y el contenido del correo")
		http.Redirect(w, r, "/rezagos/"+strconv.FormatInt(id, 10)+"/correo", http.StatusSeeOther)
		return
	}
	if err := h.mailer.EnqueueSendEmail(r.Context(), form.Destinatario, form.Asunto, form.Cuerpo); err != nil {
		h.logger.Error("enqueue email", slog.Any("error", err))
		h.flashError(r, "No se pudo programar el envío del correo")
		http.Redirect(w, r, "/rezagos/"+strconv.FormatInt(id, 10)+"/correo", http.StatusSeeOther)
		return
	}
	if err := h.completed.MarkCompleted(r.Context(), id); err != nil {
		h.logger.Error("mark completed after email", slog.Any("error", err))
	}
	h.flashSuccess(r, "Correo programado y rezago completado")
	http.Redirect(w, r, "/rezagos", http.StatusSeeOther)
}

// handleEmailCancel abandons the notification step. The task was never
// marked, so it stays pending in the queue.
func (h *Handler) handleEmailCancel(w http.ResponseWriter, r *http.Request) {
	h.flashSuccess(r, "Envío cancelado, el rezago sigue pendiente")
	http.Redirect(w, r, "/rezagos", http.StatusSeeOther)
}

func (h *Handler) handlePlanoPagoExcel(w http.ResponseWriter, r *http.Request) {
	blob, err := h.client.PlanoPagoExcel(r.Context())
	if err != nil {
		h.logger.Error("plano pago excel", slog.Any("error", err))
		h.flashError(r, err.Error())
		http.Redirect(w, r, "/rezagos", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="plano_pago_rezagos.xlsx"`)
	if _, err := w.Write(blob); err != nil {
		h.logger.Warn("write plano pago excel", slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, title, page string, vm any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, page, data); err != nil {
		h.logger.Error("render rezagos page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
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

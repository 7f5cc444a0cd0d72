package validation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/view"
)

const maxUploadBytes = 64 << 20

// Client is the slice of the remote API the validation pages depend on.
type Client interface {
	Process(ctx context.Context, files []pila.File) (map[string]pila.ValidationRecord, error)
	MatchLog(ctx context.Context, files []pila.File, extractIDs []int64) (map[string]pila.MatchEntry, error)
	ProcessV2(ctx context.Context, files []pila.File, extractIDs []int64) (*pila.ProcessV2Response, error)
	ExportExcel(ctx context.Context, files []pila.File) ([]byte, error)
	Extract400(ctx context.Context, files []pila.File) ([]byte, error)
	ListExtracts(ctx context.Context) ([]pila.Extract, error)
}

// LedgerEnqueuer schedules the durable upload of a validated batch to the
// blockchain ledger.
type LedgerEnqueuer interface {
	EnqueueLedgerUpload(ctx context.Context, batchID string, files []pila.File) error
}

// Handler serves the v1 and v2 validation flows.
type Handler struct {
	logger    *slog.Logger
	client    Client
	batches   *Store
	templates *view.Engine
	csrf      *shared.CSRFManager
	ledger    LedgerEnqueuer
	validate  *validator.Validate
	now       func() time.Time
}

// NewHandler constructs the validation handler.
func NewHandler(logger *slog.Logger, client Client, batches *Store, templates *view.Engine, csrf *shared.CSRFManager, ledger LedgerEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		client:    client,
		batches:   batches,
		templates: templates,
		csrf:      csrf,
		ledger:    ledger,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers the validation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handlePage)
	r.Post("/procesar", h.handleProcess)
	r.Get("/registro/{filename}", h.handleDetail)
	r.Post("/exportar", h.handleExportExcel)
	r.Get("/v2", h.handlePageV2)
	r.Post("/v2/procesar", h.handleProcessV2)
	r.Post("/v2/extraccion-400", h.handleExtract400)
}

type processForm struct {
	ExtractIDs []int64 `validate:"required,min=1,dive,gt=0"`
}

// Tab is one result category with its alert badge.
type Tab struct {
	Category string
	Label    string
	Alerts   int
	Active   bool
}

// ResultRow is one record line inside a category tab.
type ResultRow struct {
	Filename   string
	Radicacion string
	Present    bool
	Valid      bool
	Message    string
	Issues     int
}

type pageVM struct {
	Extracts   []pila.Extract
	HasBatch   bool
	Total      int
	FullyValid int
	Tabs       []Tab
	ActiveTab  string
	Rows       []ResultRow
	V2         bool

	// v2-only extras.
	TotalAcreditar float64
	TotalRezagos   float64
	MissingUsers   []pila.MissingUser
}

var tabLabels = map[string]string{
	pila.CategoryR04:    "R04",
	pila.CategoryMatriz: "Matriz",
	pila.CategoryLog:    "Cruce Financiero",
	pila.CategoryR05:    "R05",
	pila.CategoryR06:    "R06",
	pila.CategoryR07:    "R07",
	pila.CategoryR08:    "R08",
}

func (h *Handler) buildResultVM(batch *Batch, activeTab string) pageVM {
	vm := pageVM{}
	if batch == nil {
		return vm
	}
	if _, ok := tabLabels[activeTab]; !ok {
		activeTab = pila.CategoryR04
	}
	vm.HasBatch = true
	vm.Total = len(batch.Records)
	vm.FullyValid = FullyValidCount(batch.Records)
	vm.ActiveTab = activeTab
	vm.TotalAcreditar = batch.TotalAcreditar
	vm.TotalRezagos = batch.TotalRezagos
	vm.MissingUsers = batch.MissingUsers
	for _, cat := range Categories {
		vm.Tabs = append(vm.Tabs, Tab{
			Category: cat,
			Label:    tabLabels[cat],
			Alerts:   AlertCount(batch.Records, cat),
			Active:   cat == activeTab,
		})
	}
	for _, rec := range Sorted(batch.Records) {
		present, valid := rec.Outcome(activeTab)
		row := ResultRow{
			Filename:   rec.Filename,
			Radicacion: rec.Radicacion(),
			Present:    present,
			Valid:      valid,
		}
		if activeTab == pila.CategoryLog {
			if rec.MatchLog != nil {
				row.Message = fmt.Sprintf("log %s: diferencia %s",
					rec.MatchLog.Meta.IDLog, view.FormatCurrency(rec.MatchLog.Meta.Diferencia))
			}
		} else if rule := rec.Rule(activeTab); rule != nil {
			row.Message = rule.Mensaje
			row.Issues = rule.Meta.IssueCount()
		}
		vm.Rows = append(vm.Rows, row)
	}
	return vm
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, title, page string, vm pageVM) {
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
		h.logger.Error("render validation page", slog.Any("error", err))
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

func (h *Handler) loadExtracts(ctx context.Context) []pila.Extract {
	extracts, err := h.client.ListExtracts(ctx)
	if err != nil {
		h.logger.Warn("list extracts", slog.Any("error", err))
		return nil
	}
	return extracts
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var batch *Batch
	if sess != nil {
		batch = h.batches.Get(sess.ID)
	}
	vm := h.buildResultVM(batch, r.URL.Query().Get("tab"))
	vm.Extracts = h.loadExtracts(r.Context())
	h.render(w, r, "Validación de Planillas", "pages/validaciones.html", vm)
}

func (h *Handler) handlePageV2(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var batch *Batch
	if sess != nil {
		batch = h.batches.Get(sess.ID)
	}
	vm := h.buildResultVM(batch, r.URL.Query().Get("tab"))
	vm.V2 = true
	vm.Extracts = h.loadExtracts(r.Context())
	h.render(w, r, "Validación de Planillas v2", "pages/validaciones_v2.html", vm)
}

// parseUpload reads the uploaded planilla files and selected extract IDs
// from the multipart form.
func (h *Handler) parseUpload(r *http.Request) ([]pila.File, []int64, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("parse form: %w", err)
	}
	var files []pila.File
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["archivos"] {
			f, err := fh.Open()
			if err != nil {
				return nil, nil, err
			}
			content, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, nil, err
			}
			files = append(files, pila.File{Name: fh.Filename, Content: content})
		}
	}
	files = FilterPlanillas(files)

	var ids []int64
	for _, raw := range r.PostForm["extractos"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return files, ids, nil
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	files, extractIDs, err := h.parseUpload(r)
	if err != nil {
		h.flashError(r, "No se pudieron leer los archivos")
		http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
		return
	}
	if len(files) == 0 {
		h.flashError(r, "Seleccione al menos una planilla .txt")
		http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
		return
	}
	if err := h.validate.Struct(processForm{ExtractIDs: extractIDs}); err != nil {
		h.flashError(r, "Seleccione al menos un extracto")
		http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
		return
	}

	// The only parallel flow in the console: rule validation and the
	// financial cross-check run together. Either failure discards the
	// whole aggregation; only the first error surfaces.
	var (
		processData map[string]pila.ValidationRecord
		matchData   map[string]pila.MatchEntry
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		processData, err = h.client.Process(gctx, files)
		return err
	})
	g.Go(func() error {
		var err error
		matchData, err = h.client.MatchLog(gctx, files, extractIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("process batch", slog.Any("error", err))
		h.flashError(r, err.Error())
		http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
		return
	}

	batch := NewBatch(files, h.now())
	batch.ExtractIDs = extractIDs
	batch.Records = Merge(processData, matchData)
	h.batches.Replace(sess.ID, batch)
	h.flashSuccess(r, fmt.Sprintf("Se procesaron %d planillas", len(batch.Records)))
	http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
}

func (h *Handler) handleProcessV2(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	files, extractIDs, err := h.parseUpload(r)
	if err != nil {
		h.flashError(r, "No se pudieron leer los archivos")
		http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
		return
	}
	if len(files) == 0 {
		h.flashError(r, "Seleccione al menos una planilla .txt")
		http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
		return
	}
	if err := h.validate.Struct(processForm{ExtractIDs: extractIDs}); err != nil {
		h.flashError(r, "Seleccione al menos un extracto")
		http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
		return
	}

	resp, err := h.client.ProcessV2(r.Context(), files, extractIDs)
	if err != nil {
		h.logger.Error("process batch v2", slog.Any("error", err))
		h.flashError(r, err.Error())
		http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
		return
	}

	batch := NewBatch(files, h.now())
	batch.ExtractIDs = extractIDs
	// v2 responses already carry the merged match outcomes.
	batch.Records = make(map[string]pila.ValidationRecord, len(resp.Results))
	for name, rec := range resp.Results {
		rec.Filename = name
		batch.Records[name] = rec
	}
	batch.MissingUsers = resp.MissingUsers
	batch.TotalAcreditar = resp.TotalAcreditar
	batch.TotalRezagos = resp.TotalRezagos
	h.batches.Replace(sess.ID, batch)

	if h.ledger != nil {
		if err := h.ledger.EnqueueLedgerUpload(r.Context(), batch.ID, files); err != nil {
			h.logger.Warn("enqueue ledger upload", slog.Any("error", err))
		}
	}
	h.flashSuccess(r, fmt.Sprintf("Se procesaron %d planillas", len(batch.Records)))
	http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	filename := chi.URLParam(r, "filename")
	rec, ok := h.batches.Record(sess.ID, filename)
	if !ok {
		http.NotFound(w, r)
		return
	}
	type detailVM struct {
		Record pila.ValidationRecord
		Parser *pila.RawParserOutput
	}
	data := view.TemplateData{
		Title:       "Detalle " + filename,
		CurrentPath: r.URL.Path,
		Data:        detailVM{Record: rec, Parser: rec.RawParser},
	}
	if err := h.templates.Render(w, "pages/validacion_detalle.html", data); err != nil {
		h.logger.Error("render record detail", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) currentFiles(r *http.Request) ([]pila.File, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, shared.ErrNoBatch
	}
	batch := h.batches.Get(sess.ID)
	if batch == nil || len(batch.Files) == 0 {
		return nil, shared.ErrNoBatch
	}
	return batch.Files, nil
}

func (h *Handler) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	files, err := h.currentFiles(r)
	if err != nil {
		h.flashError(r, "No hay resultados para exportar")
		http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
		return
	}
	blob, err := h.client.ExportExcel(r.Context(), files)
	if err != nil {
		h.logger.Error("export excel", slog.Any("error", err))
		h.flashError(r, err.Error())
		http.Redirect(w, r, "/validaciones", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="reporte_validacion.xlsx"`)
	if _, err := w.Write(blob); err != nil {
		h.logger.Warn("write excel", slog.Any("error", err))
	}
}

func (h *Handler) handleExtract400(w http.ResponseWriter, r *http.Request) {
	files, err := h.currentFiles(r)
	if err != nil {
		h.flashError(r, "No hay resultados para exportar")
		http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
		return
	}
	blob, err := h.client.Extract400(r.Context(), files)
	if err != nil {
		h.logger.Error("extract 400", slog.Any("error", err))
		h.flashError(r, err.Error())
		http.Redirect(w, r, "/validaciones/v2", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="extraccion_400_validos.json"`)
	if _, err := w.Write(blob); err != nil {
		h.logger.Warn("write extraction", slog.Any("error", err))
	}
}

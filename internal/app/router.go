package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/puygroup/pila-console/internal/accredit"
	"github.com/puygroup/pila-console/internal/concil"
	"github.com/puygroup/pila-console/internal/extracts"
	"github.com/puygroup/pila-console/internal/ledger"
	"github.com/puygroup/pila-console/internal/logquery"
	"github.com/puygroup/pila-console/internal/observability"
	"github.com/puygroup/pila-console/internal/rezagos"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/validation"
	"github.com/puygroup/pila-console/internal/view"
	"github.com/puygroup/pila-console/jobs"
	"github.com/puygroup/pila-console/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Templates         *view.Engine
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	ValidationHandler *validation.Handler
	LogHandler        *logquery.Handler
	ExtractsHandler   *extracts.Handler
	ConcilHandler     *concil.Handler
	RezagosHandler    *rezagos.Handler
	AccreditHandler   *accredit.Handler
	LedgerHandler     *ledger.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:       "Consola PILA",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			Data: map[string]any{
				"AppEnv": params.Config.AppEnv,
			},
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	if params.ValidationHandler != nil {
		r.Route("/validaciones", params.ValidationHandler.MountRoutes)
	}
	if params.LogHandler != nil {
		r.Route("/logs", params.LogHandler.MountRoutes)
	}
	if params.ExtractsHandler != nil {
		r.Route("/extractos", params.ExtractsHandler.MountRoutes)
	}
	if params.ConcilHandler != nil {
		r.Route("/conciliaciones", params.ConcilHandler.MountRoutes)
	}
	if params.RezagosHandler != nil {
		r.Route("/rezagos", params.RezagosHandler.MountRoutes)
	}
	if params.AccreditHandler != nil {
		r.Route("/acreditacion", params.AccreditHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers so
// browsers keep assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

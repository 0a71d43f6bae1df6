package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
	"github.com/sells-group/catalog-enricher/internal/store"
)

var servePort int

// maxBatch caps the items accepted by one enrich request.
const maxBatch = 100

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment and retrieval HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()
		env.warm(ctx)

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
			env.Orchestrator.Breakers(),
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: newRouter(env, routerOptions{
				CORSOrigins:      cfg.Server.CORSOrigins,
				RequestTimeout:   time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
				BatchConcurrency: cfg.Orchestrator.MaxConcurrency,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type routerOptions struct {
	CORSOrigins      []string
	RequestTimeout   time.Duration
	BatchConcurrency int
}

// api serves the HTTP routes over one environment.
type api struct {
	env  *appEnv
	opts routerOptions
}

func newRouter(env *appEnv, opts routerOptions) http.Handler {
	a := &api{env: env, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	if env.Prometheus != nil {
		r.Handle("/metrics", promhttp.HandlerFor(env.Prometheus, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Post("/enrich", a.enrich)
		r.Post("/search", a.search)
		r.Get("/sources", a.sources)
		r.Get("/consensus/{id}", a.consensus)
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Post("/documents", a.upsertDocuments)
			r.Delete("/documents/{id}", a.deleteDocument)
			r.Post("/validations", a.recordValidation)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	status := http.StatusOK
	if a.env.Store != nil {
		if err := a.env.Store.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if a.env.SourcesErr != nil {
		body["status"] = "degraded"
		body["sources"] = a.env.SourcesErr.Error()
		status = http.StatusServiceUnavailable
	}
	if a.env.Orchestrator != nil {
		if states := a.env.Orchestrator.Breakers().States(); len(states) > 0 {
			body["breakers"] = states
		}
	}
	writeJSON(w, status, body)
}

type enrichRequest struct {
	Item        *model.ExtractedItem  `json:"item"`
	Items       []model.ExtractedItem `json:"items"`
	Tenant      string                `json:"tenant"`
	Sector      string                `json:"sector"`
	BypassCache bool                  `json:"bypass_cache"`
	DeadlineMs  int                   `json:"deadline_ms"`
}

func (a *api) enrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if !decode(w, r, &req) {
		return
	}
	items := req.Items
	if req.Item != nil {
		items = append([]model.ExtractedItem{*req.Item}, items...)
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "item is required")
		return
	}
	if len(items) > maxBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d items per request", maxBatch))
		return
	}
	for i := range items {
		if strings.TrimSpace(items[i].Name) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("item %d: name is required", i))
			return
		}
	}

	ectx := model.EnrichmentContext{
		Tenant:      req.Tenant,
		Sector:      req.Sector,
		BypassCache: req.BypassCache,
		RequestID:   middleware.GetReqID(r.Context()),
		Deadline:    time.Duration(req.DeadlineMs) * time.Millisecond,
	}

	var (
		recs []*model.ConsensusRecord
		err  error
	)
	if len(items) == 1 {
		var rec *model.ConsensusRecord
		rec, err = a.env.Orchestrator.Enrich(r.Context(), items[0], ectx)
		recs = []*model.ConsensusRecord{rec}
	} else {
		recs, err = a.env.Orchestrator.EnrichAll(r.Context(), items, ectx, a.opts.BatchConcurrency)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if eris.Is(err, provider.ErrRegistryUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	if req.Item != nil && len(req.Items) == 0 {
		writeJSON(w, http.StatusOK, recs[0])
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

type searchRequest struct {
	Tenant  string            `json:"tenant"`
	Query   string            `json:"query"`
	Options retrieval.Options `json:"options"`
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	if a.env.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}
	req := searchRequest{Options: retrieval.DefaultOptions()}
	if !decode(w, r, &req) {
		return
	}
	hits, err := a.env.Engine.Search(r.Context(), req.Tenant, req.Query, req.Options)
	if err != nil {
		writeError(w, searchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// searchStatus maps caller mistakes to 400 and everything else to 500.
func searchStatus(err error) int {
	switch {
	case eris.Is(err, retrieval.ErrEmptyQuery),
		eris.Is(err, retrieval.ErrTenantRequired),
		eris.Is(err, retrieval.ErrInvalidOptions):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type documentsRequest struct {
	Collection string               `json:"collection"`
	Documents  []retrieval.Document `json:"documents"`
}

func (a *api) upsertDocuments(w http.ResponseWriter, r *http.Request) {
	if a.env.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}
	var req documentsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents are required")
		return
	}
	for i := range req.Documents {
		if req.Documents[i].Collection == "" {
			req.Documents[i].Collection = req.Collection
		}
	}

	tenant := chi.URLParam(r, "tenant")
	n, err := a.env.Engine.UpsertDocuments(r.Context(), tenant, req.Documents)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Info("documents indexed",
		zap.String("tenant", tenant),
		zap.Int("documents", len(req.Documents)),
		zap.Int("passages", n),
	)
	writeJSON(w, http.StatusOK, map[string]int{"documents": len(req.Documents), "passages": n})
}

func (a *api) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if a.env.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		collection = retrieval.DefaultOptions().Collection
	}
	err := a.env.Engine.DeleteDocument(r.Context(), chi.URLParam(r, "tenant"), collection, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) recordValidation(w http.ResponseWriter, r *http.Request) {
	if a.env.Sources == nil || a.env.Sources.History == nil || !a.env.Sources.History.IsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "company history is not configured")
		return
	}
	var v model.Validation
	if !decode(w, r, &v) {
		return
	}
	v.Tenant = chi.URLParam(r, "tenant")
	if !v.Normalize() {
		writeError(w, http.StatusBadRequest, "item_name and fields are required")
		return
	}
	if err := a.env.Sources.History.Record(r.Context(), &v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": v.ID})
}

func (a *api) sources(w http.ResponseWriter, r *http.Request) {
	var breakers map[string]string
	if a.env.Orchestrator != nil {
		breakers = a.env.Orchestrator.Breakers().States()
	}
	views, err := describeSources(a.env.Sources.Registry, r.URL.Query().Get("sector"), breakers)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": views})
}

func (a *api) consensus(w http.ResponseWriter, r *http.Request) {
	if a.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	rec, err := a.env.Store.GetConsensus(r.Context(), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "consensus record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

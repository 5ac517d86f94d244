package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/config"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/publish"
	"github.com/sells-group/dossier-cli/internal/store"
)

var (
	servePort    int
	serveOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dossier HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, serveOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		api := newAPI(ctx, env.Runner.Run, env.Store, env.Sink, config.Timeout(cfg.Server.RunTimeoutSecs))
		handler := buildRouter(api, cfg.Server.AllowedOrigins)

		err = startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
		api.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "use canned research clients (no credentials or network)")
	rootCmd.AddCommand(serveCmd)
}

// runFunc researches one company.
type runFunc func(ctx context.Context, clues model.CompanyClues) *model.RunRecord

// api serves research requests and run history. Asynchronous runs are
// bound to the server's base context so shutdown cancels them.
type api struct {
	base    context.Context
	run     runFunc
	store   store.Store
	sink    publish.Publisher
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newAPI(base context.Context, run runFunc, st store.Store, sink publish.Publisher, timeout time.Duration) *api {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &api{base: base, run: run, store: st, sink: sink, timeout: timeout}
}

// Wait stops accepting asynchronous runs and blocks until every accepted
// run has finished.
func (a *api) Wait() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.inflight.Wait()
}

// admit reserves a slot for a background run. It refuses once the server is
// shutting down so no run starts after Wait.
func (a *api) admit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.base.Err() != nil {
		return false
	}
	a.inflight.Add(1)
	return true
}

func buildRouter(a *api, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dossiers", a.createDossier)
		r.Get("/dossiers/{callsign}", a.latestDossier)
		r.Get("/runs", a.listRuns)
		r.Get("/runs/{id}", a.getRun)
	})
	return r
}

// dossierRequest is the body of POST /v1/dossiers.
type dossierRequest struct {
	Callsign    string   `json:"callsign"`
	DBA         string   `json:"dba"`
	Owners      []string `json:"owners"`
	Domain      string   `json:"domain"`
	Website     string   `json:"website"`
	LinkedInURL string   `json:"linkedin_url"`
	AKANames    []string `json:"aka_names"`
	Tags        []string `json:"tags"`
	Twitter     string   `json:"twitter_handle"`
	Crunchbase  string   `json:"crunchbase_url"`
}

func (r dossierRequest) clues() model.CompanyClues {
	c := model.NewCompanyClues(r.Callsign, r.DBA, r.Owners, r.Domain, r.LinkedInURL)
	c.Website = strings.TrimSpace(r.Website)
	if c.Domain == "" && c.Website != "" {
		c.Domain = model.NormalizeDomain(c.Website)
	}
	c.AliasNames = r.AKANames
	c.Tags = r.Tags
	c.SetSocial(r.Twitter, r.Crunchbase)
	return c
}

// createDossier starts a run. With ?wait=true it blocks and returns the
// record; otherwise it answers 202 and researches in the background.
func (a *api) createDossier(w http.ResponseWriter, r *http.Request) {
	var req dossierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	clues := req.clues()
	if clues.Callsign == "" {
		writeError(w, http.StatusBadRequest, "callsign is required")
		return
	}
	if a.run == nil {
		writeError(w, http.StatusServiceUnavailable, "research pipeline not configured")
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()
		rec := a.research(ctx, clues)
		if rec.State == model.RunCancelled {
			writeError(w, http.StatusGatewayTimeout, "run cancelled before completion")
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	if !a.admit() {
		writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	go func() {
		defer a.inflight.Done()
		ctx, cancel := context.WithTimeout(a.base, a.timeout)
		defer cancel()
		a.research(ctx, clues)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"callsign": clues.Callsign,
	})
}

func (a *api) research(ctx context.Context, clues model.CompanyClues) *model.RunRecord {
	rec := a.run(ctx, clues)
	if a.sink != nil {
		if err := a.sink.Publish(context.WithoutCancel(ctx), rec); err != nil {
			zap.L().Warn("run not persisted", zap.String("run_id", rec.ID), zap.Error(err))
		}
	}
	zap.L().Info("api research complete",
		zap.String("callsign", rec.Callsign),
		zap.String("state", string(rec.State)),
		zap.String("strategy", rec.Strategy),
	)
	return rec
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Callsign: q.Get("callsign"),
		State:    model.RunState(q.Get("state")),
		Strategy: q.Get("strategy"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	rec, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) latestDossier(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	d, err := a.store.LatestDossier(r.Context(), chi.URLParam(r, "callsign"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no dossier for callsign")
		return
	}
	if err != nil {
		zap.L().Error("api: latest dossier", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "latest dossier failed")
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(d.Markdown))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

package subindex

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"subtitle-index/internal/handlers"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
	"subtitle-index/internal/middleware"
	"subtitle-index/internal/render"
	"subtitle-index/internal/startup"
)

const (
	metricsInterval = time.Minute
	sweepInterval   = time.Hour
	shutdownTimeout = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background scan loop (default)",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	startTime := time.Now()

	cfg, v, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(context.Background(), cfg, v, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.memory.Start()

	startup.LogIndexerInit(cfg.ScanInterval, cfg.ScanRetryDelay)
	a.indexer.Start()
	startup.LogIndexerStarted()

	a.renderer.StartSweeper(sweepInterval)

	h := handlers.New(a.db, a.indexer, a.search, a.renderer, a.thumbs, cfg)

	var collector *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		info := startup.GetBuildInfo()
		metrics.InitializeMetrics()
		metrics.AppInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)

		collector = metrics.NewCollector(a.db, metricsInterval)
		collector.Start()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	router := setupRouter(h)
	startup.LogHTTPRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           wrapMiddleware(router),
		ReadHeaderTimeout: 15 * time.Second,
		// Renders can take minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		startup.LogServerStarted(startup.ServerConfig{
			Port:            cfg.Port,
			MetricsPort:     cfg.MetricsPort,
			MetricsEnabled:  cfg.MetricsEnabled,
			StartupDuration: time.Since(startTime),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case err, ok := <-serverErr:
		if ok {
			logging.Error("Server error: %v", err)
		}
		startup.LogShutdownInitiated("server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping indexer")
	a.indexer.Stop()
	a.memory.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	startup.LogShutdownStep("Stopping render sweeper")
	a.renderer.Stop()
	startup.LogShutdownStepComplete("Render sweeper stopped")

	startup.LogShutdownStep("Stopping ffmpeg processes")
	a.transcoder.Cleanup()
	startup.LogShutdownStepComplete("ffmpeg processes stopped")

	if collector != nil {
		collector.Stop()
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownComplete()
	return nil
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/libraries", h.ListLibraries).Methods("GET")
	api.HandleFunc("/folders", h.GetFolders).Methods("GET")
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/files/{id:[0-9]+}", h.GetFile).Methods("GET")
	api.HandleFunc("/files/{id:[0-9]+}/thumbnail", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/tracks/{id:[0-9]+}", h.GetTrack).Methods("GET")
	api.HandleFunc("/render", h.Render).Methods("POST")
	api.HandleFunc("/scan", h.TriggerScan).Methods("POST")
	api.HandleFunc("/scan/status", h.ScanStatus).Methods("GET")

	// Rendered artifacts
	r.PathPrefix(render.OutputPrefix).HandlerFunc(h.ServeOutput).Methods("GET", "HEAD")

	return r
}

func wrapMiddleware(router http.Handler) http.Handler {
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(router)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	handler = middleware.Logger(middleware.DefaultLoggingConfig())(handler)
	return middleware.RequestID(handler)
}

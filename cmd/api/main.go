// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sanjayabhattarai/katkut.ai/internal/config"
	"github.com/sanjayabhattarai/katkut.ai/internal/editor"
	"github.com/sanjayabhattarai/katkut.ai/internal/handler"
	"github.com/sanjayabhattarai/katkut.ai/internal/logging"
	"github.com/sanjayabhattarai/katkut.ai/internal/render"
	"github.com/sanjayabhattarai/katkut.ai/internal/service"
	"github.com/sanjayabhattarai/katkut.ai/internal/storage"
	"github.com/sanjayabhattarai/katkut.ai/internal/style"
	"github.com/sanjayabhattarai/katkut.ai/internal/timeline"
	"github.com/sanjayabhattarai/katkut.ai/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("configure logger")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	dialect, err := service.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	db, err := service.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if dialect == service.DialectPostgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	projects := service.NewProjectService(db, dialect)
	if err := projects.Migrate(ctx); err != nil {
		return err
	}
	log.WithField("driver", dialect).Info("database ready")

	// ── Styles, storage, render ───────────────────────────────────────────────
	styles, err := style.LoadFile(cfg.StylesFile)
	if err != nil {
		return err
	}

	fileStorage, err := storage.NewLocalStorage(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		return err
	}
	log.WithField("dir", cfg.UploadDir).Info("using local storage")

	renderClient := render.NewClient(cfg.RenderEndpoint, cfg.RenderAPIKey, log)
	pool := worker.NewPool(cfg.ExportWorkers, cfg.ExportQueue, log)

	exports := service.NewExportService(projects, renderClient, pool, log)
	exports.Assembler = render.Assembler{Output: render.Output{Format: cfg.RenderOutput, Resolution: cfg.RenderResolution}}
	exports.PollInterval = cfg.PollInterval
	exports.Timeout = cfg.RenderTimeout
	exports.MaxErrors = cfg.PollMaxErrors

	sessions := editor.NewRegistry(log)
	defer sessions.CloseAll()

	h := &handler.Handler{
		Projects:       projects,
		Exports:        exports,
		Sessions:       sessions,
		Styles:         styles,
		Generator:      timeline.NewGenerator(styles),
		Storage:        fileStorage,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	}

	// ── Router ────────────────────────────────────────────────────────────────
	r := mux.NewRouter()
	h.Routes(r)
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))),
	)
	r.Use(logging.RequestLogger(log))

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		// X-User-ID is injected by the API gateway in production.
		handlers.AllowedHeaders([]string{"Content-Type", handler.UserHeader, "Authorization", logging.RequestIDHeader}),
		handlers.ExposedHeaders([]string{logging.RequestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.WithField("component", "recovery")),
		handlers.PrintRecoveryStack(!cfg.Production()),
	)

	// ── HTTP Server with timeouts ──────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      recovery(cors(r)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // uploads
		IdleTimeout:  60 * time.Second,
	}

	// ── Lifecycle ─────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return pool.Run(gctx) })

	g.Go(func() error {
		pool.Start()
		if _, err := exports.Resume(gctx); err != nil {
			log.WithError(err).Warn("resume exports")
		}
		return nil
	})

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("editor service running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining requests")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}

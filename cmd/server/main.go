package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/liamcoop/calcengine/calcservice"
	"github.com/liamcoop/calcengine/calculations"
	"github.com/liamcoop/calcengine/calculations/catalog"
	"github.com/liamcoop/calcengine/internal/config"
	"github.com/liamcoop/calcengine/internal/logger"
)

type Server struct {
	db      *sql.DB
	service *calcservice.Service
	conf    config.ServerConfig
	logger  *zap.Logger
	router  *chi.Mux
}

// NewServer wires the HTTP routes onto a ready service. db may be nil when the
// in-memory stores are in use.
func NewServer(svc *calcservice.Service, db *sql.DB, conf config.ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		db:      db,
		service: svc,
		conf:    conf,
		logger:  log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger, s.conf.SlowRequestThreshold))
	r.Use(middleware.Recoverer)
	if s.conf.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.conf.RequestTimeout))
	}

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/calculations", func(r chi.Router) {
		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handlePublishTemplate)
		r.Get("/templates/{templateId}", s.handleGetTemplate)

		r.Post("/execute", s.handleExecute)
		r.Post("/save-result", s.handleSaveResult)
		r.Get("/saved", s.handleListSaved)
		r.Get("/results/{resultId}", s.handleGetResult)
		r.Get("/recommendations", s.handleRecommendations)
		r.Post("/compare", s.handleCompare)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// openStores returns the Postgres stores when a database URL is configured and
// the in-memory stores otherwise
func openStores(conf config.DatabaseConfig) (*sql.DB, calculations.TemplateStore, calculations.ResultStore, error) {
	if conf.URL == "" {
		return nil, calculations.NewInMemoryTemplateStore(), calculations.NewInMemoryResultStore(), nil
	}

	db, err := sql.Open("postgres", conf.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if conf.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.MaxOpenConns)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, calculations.NewPostgresTemplateStore(db), calculations.NewPostgresResultStore(db), nil
}

// bootstrap builds the service, seeds the built-in catalog when enabled and
// compiles every active template
func bootstrap(ctx context.Context, conf *config.Configuration, templates calculations.TemplateStore, results calculations.ResultStore, log *zap.Logger) (*calcservice.Service, error) {
	svc, err := calcservice.New(templates, results, calcservice.Options{
		Logger: log,
		Cache:  calculations.NewInMemoryTemplatesCache(calculations.CacheConfig{TTL: conf.Templates.CacheTTL}),
	})
	if err != nil {
		return nil, err
	}

	if conf.Templates.SeedCatalog {
		builtin, err := catalog.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in catalog: %w", err)
		}
		n, err := svc.SeedCatalog(ctx, builtin)
		if err != nil {
			return nil, err
		}
		log.Info("catalog seeded", zap.Int("written", n), zap.Int("builtin", len(builtin)))
	}

	if err := svc.LoadTemplates(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func main() {
	conf, err := config.Load(os.Getenv("CALC_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(conf.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, templates, results, err := openStores(conf.Database)
	if err != nil {
		log.Fatal("failed to open stores", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	} else {
		log.Warn("no database configured, results are kept in memory")
	}

	svc, err := bootstrap(context.Background(), conf, templates, results, log)
	if err != nil {
		log.Fatal("failed to start calculation service", zap.Error(err))
	}

	server := NewServer(svc, db, conf.Server, log)

	httpServer := &http.Server{
		Addr:         conf.Server.Address,
		Handler:      server,
		ReadTimeout:  conf.Server.ReadTimeout,
		WriteTimeout: conf.Server.WriteTimeout,
		IdleTimeout:  conf.Server.IdleTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("address", conf.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}

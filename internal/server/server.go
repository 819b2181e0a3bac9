// Package server exposes QGenie over a JSON HTTP API. It only adapts
// requests to the services; every rule lives in the service packages.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/qgenie/internal/annotation"
	"github.com/koustreak/qgenie/internal/chat"
	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/export"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
	"github.com/koustreak/qgenie/internal/profile"
	"github.com/koustreak/qgenie/internal/query"
	"github.com/koustreak/qgenie/internal/schema"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services the API serves. Exporter, Credentials, Connector
// and Assistant may be nil, which disables their routes.
type Deps struct {
	Profiles    *profile.Service
	Schemas     *schema.Scanner
	Annotations *annotation.Service
	Exporter    *export.Exporter
	Queries     *query.Executor
	History     *query.History
	Credentials *credential.Vault
	Chats       *chat.Repository
	Assistant   *chat.Service
	Connector   *database.Connector
	Metrics     *metrics.Metrics
}

// Server is the HTTP front of the services.
type Server struct {
	deps   Deps
	router chi.Router
	log    *logger.Logger
}

// New builds the router.
func New(deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{deps: deps, log: log.Component("server")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", addr).Logger().Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe(s.log, s.deps.Metrics))

	r.Get("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.listProfiles)
			r.Post("/", s.createProfile)
			r.Post("/test", s.testProfileInput)
			r.Route("/{profileID}", func(r chi.Router) {
				r.Get("/", s.getProfile)
				r.Patch("/", s.updateProfile)
				r.Delete("/", s.deleteProfile)
				r.Post("/test", s.testProfile)
				r.Get("/hierarchy", s.hierarchy)
				r.Get("/schemas", s.listSchemas)
				r.Get("/schemas/{schema}/tables", s.listTables)
				r.Get("/schemas/{schema}/tables/{table}/columns", s.listColumns)
				r.Get("/annotation", s.annotationByProfile)
				r.Get("/annotation/tree", s.annotationTree)
			})
		})

		r.Route("/annotations", func(r chi.Router) {
			r.Post("/", s.createAnnotation)
			r.Get("/{annotationID}", s.getAnnotation)
			r.Delete("/{annotationID}", s.deleteAnnotation)
			if s.deps.Exporter != nil {
				r.Post("/{annotationID}/export", s.exportAnnotation)
				r.Get("/exports", s.listExports)
			}
		})

		r.Route("/query", func(r chi.Router) {
			r.Post("/execute", s.execute)
			r.Post("/execute-test", s.executeTest)
			r.Get("/history", s.history)
		})

		if s.deps.Credentials != nil {
			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", s.listCredentials)
				r.Post("/", s.saveCredential)
				r.Put("/{service}", s.updateCredential)
				r.Delete("/{service}", s.deleteCredential)
			})
		}

		r.Route("/chat/tabs", func(r chi.Router) {
			r.Get("/", s.listTabs)
			r.Post("/", s.createTab)
			r.Get("/{tabID}", s.getTab)
			r.Patch("/{tabID}", s.renameTab)
			r.Delete("/{tabID}", s.deleteTab)
			r.Post("/{tabID}/messages", s.addMessage)
			if s.deps.Assistant != nil {
				r.Post("/{tabID}/ask", s.ask)
			}
		})

		if s.deps.Connector != nil {
			r.Get("/drivers", s.listDrivers)
			r.Get("/drivers/{type}", s.driverInfo)
		}
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	ok(w, map[string]string{"status": "ok"})
}

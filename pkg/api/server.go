package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/docpipe/pkg/auth"
	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/metrics"
	"github.com/cuemby/docpipe/pkg/scheduler"
)

// Submitter is the narrow slice of *scheduler.Scheduler the API layer
// needs, so tests can substitute a fake without a real worker pool.
type Submitter interface {
	Submit(ctx context.Context, ticket scheduler.Ticket) error
	Cancel(jobID string) error
}

// Server wires the Job Store, filestore, scheduler, and authenticator into
// a routed HTTP handler.
type Server struct {
	store       jobstore.Store
	files       *filestore.Store
	sched       Submitter
	auth        *auth.Authenticator
	corsOrigins []string

	mux *http.ServeMux
}

// Config carries the pieces NewServer wires together.
type Config struct {
	Store       jobstore.Store
	Files       *filestore.Store
	Scheduler   Submitter
	Auth        *auth.Authenticator
	CORSOrigins []string
}

// NewServer builds a Server with every route registered.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:       cfg.Store,
		files:       cfg.Files,
		sched:       cfg.Scheduler,
		auth:        cfg.Auth,
		corsOrigins: cfg.CORSOrigins,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	for _, kind := range pdfKinds {
		s.mux.HandleFunc("POST /pdf/"+kind.path, s.requireAuth(s.handlePDFOperation(kind)))
		s.mux.HandleFunc("GET /pdf/"+kind.path+"/info", s.handleInfo(kind))
	}
	s.mux.HandleFunc("POST /pdf/convert/{target}", s.requireAuth(s.handleConvert))
	s.mux.HandleFunc("GET /pdf/convert/{target}/info", s.handleConvertInfo)

	s.mux.HandleFunc("POST /user/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /user/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /user/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /user/auth/logout", s.requireAuth(s.handleLogout))
	s.mux.HandleFunc("GET /user/profile", s.requireAuth(s.handleGetProfile))
	s.mux.HandleFunc("PATCH /user/profile", s.requireAuth(s.handleUpdateProfile))
	s.mux.HandleFunc("GET /user/profile/usage", s.requireAuth(s.handleUsage))

	s.mux.HandleFunc("GET /user/history", s.requireAuth(s.handleListHistory))
	s.mux.HandleFunc("GET /user/history/job/{id}", s.requireAuth(s.handleGetJob))
	s.mux.HandleFunc("DELETE /user/history/job/{id}", s.requireAuth(s.handleDeleteJob))
	s.mux.HandleFunc("DELETE /user/history/clear-history", s.requireAuth(s.handleClearHistory))

	s.mux.HandleFunc("GET /storage/downloads/{tenantID}/{jobID}/{filename}", s.requireAuth(s.handleDownload))

	s.mux.HandleFunc("GET /healthz", metrics.HealthHandler())
	s.mux.HandleFunc("GET /readyz", metrics.ReadyHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// ServeHTTP implements http.Handler, applying logging and CORS around the
// routed mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withLogging(s.withCORS(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe starts an HTTP server bound to addr serving this Server's
// routes, in the teacher's health-server bootstrap style.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // large uploads and large artifact downloads
		IdleTimeout:  120 * time.Second,
	}
	log.Logger.Info().Str("addr", addr).Msg("api server listening")
	return httpServer.ListenAndServe()
}

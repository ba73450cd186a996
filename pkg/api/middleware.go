package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/types"
)

type ctxKey int

const tenantCtxKey ctxKey = iota

// tenantFromContext returns the tenant resolved by requireAuth, or nil if
// the request was never authenticated (should not happen behind
// requireAuth, but callers outside it must handle the nil case).
func tenantFromContext(ctx context.Context) *types.Tenant {
	t, _ := ctx.Value(tenantCtxKey).(*types.Tenant)
	return t
}

// requireAuth resolves the caller's tenant from either a bearer access
// token or an X-API-Key header and stores it in the request context. A
// missing or invalid credential short-circuits with 401 before next runs.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey, tenant)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) authenticate(r *http.Request) (*types.Tenant, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		tenant, _, err := s.auth.AuthenticateAPIKey(apiKey)
		return tenant, err
	}

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return nil, docerrors.E("api.authenticate", docerrors.Unauthenticated, nil)
	}
	raw := strings.TrimPrefix(authz, "Bearer ")
	claims, err := s.auth.VerifyAccessToken(raw)
	if err != nil {
		return nil, err
	}
	tenant, err := s.store.GetTenant(claims.Subject)
	if err != nil {
		return nil, docerrors.E("api.authenticate", docerrors.Unauthenticated, err)
	}
	return tenant, nil
}

// withCORS applies the configured allow-list to every response, including
// short-circuiting preflight OPTIONS requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, X-API-Key, Content-Type")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// withLogging logs every request at Info with method, path, status, and
// elapsed time, in the teacher's structured-logging style.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

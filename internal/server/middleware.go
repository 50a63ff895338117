package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vizionai/vizion/internal/auth"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/ratelimit"
)

// logRequests logs one line per request with the chi request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := s.log.WithFields(logging.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
		})
		if status >= 500 {
			entry.Error("request failed")
			return
		}
		entry.Info("request")
	})
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		s.metrics.IncInFlight()
		defer s.metrics.DecInFlight()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}

type authResultKey struct{}

// authResult is what optionalAuth found in the Authorization header.
type authResult struct {
	status  int
	message string
}

// bearer extracts the API key from an Authorization header.
func bearer(header string) (string, string) {
	if header == "" {
		return "", "Missing Authorization header"
	}
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || key == "" {
		return "", "Invalid Authorization format. Use: Bearer <api_key>"
	}
	return key, ""
}

// optionalAuth attaches the agent identity when a valid key is present and
// otherwise lets the request through, remembering why for requireAuth.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, problem := bearer(r.Header.Get("Authorization"))
		if problem != "" {
			ctx = context.WithValue(ctx, authResultKey{}, authResult{http.StatusUnauthorized, problem})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		id, err := s.auth.Resolve(ctx, key)
		switch {
		case err == nil:
			ctx = auth.WithIdentity(ctx, id)
		case errors.Is(err, auth.ErrInvalidFormat):
			ctx = context.WithValue(ctx, authResultKey{}, authResult{http.StatusUnauthorized, "Invalid API key format"})
		case errors.Is(err, auth.ErrInvalidKey):
			ctx = context.WithValue(ctx, authResultKey{}, authResult{http.StatusUnauthorized, "Invalid API key"})
		default:
			s.log.WithError(err).Error("api key lookup failed")
			ctx = context.WithValue(ctx, authResultKey{}, authResult{http.StatusInternalServerError, "Authentication unavailable"})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth rejects requests optionalAuth could not authenticate.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		res, ok := r.Context().Value(authResultKey{}).(authResult)
		if !ok {
			res = authResult{http.StatusUnauthorized, "Missing Authorization header"}
		}
		writeError(w, res.status, res.message)
	})
}

// requireAdmin checks the X-Admin-Token header. With no token configured
// the admin routes are closed.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.cfg.Server.AdminToken
		got := r.Header.Get("X-Admin-Token")
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusForbidden, "Admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey buckets authenticated agents by id and everyone else by IP.
func clientKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "agent:" + id.ID
	}
	return "ip:" + ratelimit.ByIP(r)
}

// limit applies the named rule's limiter.
func (s *Server) limit(rule ratelimit.Rule) func(http.Handler) http.Handler {
	return s.limiters[rule.Name].Handler(clientKey)
}

func agentID(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.ID
}

// Package server is the HTTP API behind the shift report form: login,
// report create/list/delete and the reference catalogs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Options configures a Server.
type Options struct {
	Secret        string
	SessionIdle   time.Duration
	TokenMaxAge   time.Duration
	SecureCookies bool
	// Registry receives the server metrics; nil creates a private one.
	Registry *prometheus.Registry
}

type Server struct {
	store       *Store
	logger      *zap.Logger
	sessions    *sessions.CookieStore
	tokens      *securecookie.SecureCookie
	sessionIdle time.Duration
	registry    *prometheus.Registry
	metrics     *metrics
	now         func() time.Time
}

func New(store *Store, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	return &Server{
		store:       store,
		logger:      logger,
		sessions:    newSessionStore(opts.Secret, opts.SecureCookies),
		tokens:      newTokenCodec(opts.Secret, opts.TokenMaxAge),
		sessionIdle: opts.SessionIdle,
		registry:    opts.Registry,
		metrics:     newMetrics(opts.Registry),
		now:         time.Now,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/auth/login", s.loginHandler).Methods("POST")
	r.HandleFunc("/auth/logout", s.logoutHandler).Methods("POST")
	r.HandleFunc("/auth/check", s.requireAuth(s.checkAuthHandler)).Methods("GET")
	r.HandleFunc("/auth/register", s.requireAdmin(s.registerHandler)).Methods("POST")

	r.HandleFunc("/users", s.requireAdmin(s.getUsersHandler)).Methods("GET")
	r.HandleFunc("/users/{id:[0-9]+}", s.requireAdmin(s.updateUserHandler)).Methods("PUT")
	r.HandleFunc("/users/{id:[0-9]+}", s.requireAdmin(s.deleteUserHandler)).Methods("DELETE")

	r.HandleFunc("/reports", s.requireAdmin(s.getAllReportsHandler)).Methods("GET")
	r.HandleFunc("/reports", s.requireAuth(s.createReportHandler)).Methods("POST")
	r.HandleFunc("/reports/{id:[0-9]+}", s.requireAuth(s.getReportHandler)).Methods("GET")
	r.HandleFunc("/reports/{id:[0-9]+}", s.requireAuth(s.deleteReportHandler)).Methods("DELETE")
	r.HandleFunc("/myreports", s.requireAuth(s.getMyReportsHandler)).Methods("GET")

	r.HandleFunc("/catalog/{kind}", s.requireAuth(s.listCatalogHandler)).Methods("GET")
	r.HandleFunc("/catalog/{kind}", s.requireAdmin(s.createCatalogHandler)).Methods("POST")
	r.HandleFunc("/catalog/{kind}/{id:[0-9]+}", s.requireAdmin(s.updateCatalogHandler)).Methods("PUT")
	r.HandleFunc("/catalog/{kind}/{id:[0-9]+}", s.requireAdmin(s.deleteCatalogHandler)).Methods("DELETE")

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return s.requestLogger(s.metrics.handler(r))
}

// EnsureAdmin creates the first admin when the user table is empty.
func (s *Server) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" {
		return nil
	}
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	if _, err := s.store.CreateUser(ctx, username, string(hash), "admin"); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap admin created", zap.String("username", username))
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// storeError maps a store failure onto a response, logging unexpected ones.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, op+": not found")
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrHasReports):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("database error", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, op+": database error")
	}
}

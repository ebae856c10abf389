package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni"
	"go.uber.org/zap"

	"txTracker/internal/metrics"
	"txTracker/internal/model"
	"txTracker/internal/query"
)

// Querier is the read side served over HTTP.
type Querier interface {
	ListTransactions(ctx context.Context, params query.ListParams) ([]model.Transaction, error)
	ListAnomalousEvents(ctx context.Context) ([]model.Event, error)
}

// Options tune the HTTP handler.
type Options struct {
	RequestTimeout time.Duration
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
}

type server struct {
	svc    Querier
	opts   Options
	logger *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds the router wrapped in recovery and CORS middleware.
func NewHandler(svc Querier, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{svc: svc, opts: opts, logger: logger}

	router := mux.NewRouter()
	router.Use(s.instrument)
	router.HandleFunc("/transactions", s.listTransactions).Methods(http.MethodGet)
	router.HandleFunc("/anomalies", s.listAnomalies).Methods(http.MethodGet)
	router.HandleFunc("/graph", s.listAnomalies).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	recovery := negroni.NewRecovery()
	recovery.PrintStack = false
	recovery.Logger = zap.NewStdLog(logger)

	n := negroni.New()
	n.Use(negroni.HandlerFunc(cors))
	n.Use(recovery)
	n.UseHandler(router)
	return n
}

// cors allows any origin on every response, including errors.
func cors(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	next(w, r)
}

func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rw, ok := w.(negroni.ResponseWriter)
		if !ok {
			rw = negroni.NewResponseWriter(w)
		}
		next.ServeHTTP(rw, r)
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rw.Status())).Inc()
	})
}

func (s *server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

func (s *server) listTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := query.ParseListParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	txs, err := s.svc.ListTransactions(ctx, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *server) listAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	events, err := s.svc.ListAnomalousEvents(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		if err := s.opts.Health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = "upstream unavailable"
	case http.StatusInternalServerError:
		message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrUpstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/limiter"
	"github.com/local/docverify/internal/metrics"
	"github.com/local/docverify/internal/pipeline"
	"github.com/local/docverify/internal/statuscheck"
	"github.com/local/docverify/internal/traceid"
)

// Runner executes one verification end-to-end.
type Runner interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server exposes the verification API.
type Server struct {
	runner     Runner
	checker    *statuscheck.Checker
	inflight   *limiter.Inflight
	maxUpload  int64
	retryAfter time.Duration
	validate   *validator.Validate
}

func New(cfg config.HTTPConfig, runner Runner, checker *statuscheck.Checker, retryAfter time.Duration) *Server {
	v := validator.New()
	_ = v.RegisterValidation("iin", validIIN)
	return &Server{
		runner:     runner,
		checker:    checker,
		inflight:   limiter.New(cfg.MaxInflight),
		maxUpload:  cfg.MaxUploadBytes,
		retryAfter: retryAfter,
		validate:   v,
	}
}

// RegisterRoutes mounts the API on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /v1/verify", s.instrument("/v1/verify", s.handleVerify))
	mux.Handle("POST /v1/kafka/verify", s.instrument("/v1/kafka/verify", s.handleKafkaVerify))
	mux.Handle("GET /health", s.instrument("/health", s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())
}

// instrument stamps the trace id, records metrics and logs the access line.
func (s *Server) instrument(path string, next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get("X-Trace-ID")
		if id == "" {
			id = traceid.New()
		}
		ctx := traceid.Into(r.Context(), id)
		w.Header().Set("X-Trace-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		dur := time.Since(start)
		metrics.ObserveHTTP(path, r.Method, strconv.Itoa(rec.status), dur)
		log.Info().Str("path", path).Str("method", r.Method).Int("status", rec.status).
			Str("trace_id", id).Dur("duration", dur).Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := s.checker.Summary(r.Context())
	status := http.StatusOK
	if !summary.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, summary)
}

// admit reserves an in-flight slot, answering 429 when the process is full.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (func(), bool) {
	release, ok := s.inflight.Acquire()
	if !ok {
		e := apperr.Server(apperr.CodeServiceUnavailable, "too many concurrent verification requests", true)
		s.writeProblemStatus(w, r, http.StatusTooManyRequests, e)
		return nil, false
	}
	return release, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var iinPattern = regexp.MustCompile(`^\d{12}$`)

func validIIN(fl validator.FieldLevel) bool {
	return iinPattern.MatchString(fl.Field().String())
}

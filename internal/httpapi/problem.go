package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/traceid"
)

// problem is the RFC-7807 document rendered for system and client errors.
type problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	Code      string `json:"code"`
	Category  string `json:"category"`
	Retryable bool   `json:"retryable"`
	TraceID   string `json:"trace_id"`
}

func (s *Server) writeProblem(w http.ResponseWriter, r *http.Request, e *apperr.Error) {
	s.writeProblemStatus(w, r, e.HTTPStatus(), e)
}

func (s *Server) writeProblemStatus(w http.ResponseWriter, r *http.Request, status int, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter.Seconds())))
	}
	w.WriteHeader(status)

	p := problem{
		Type:      "about:blank",
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    e.Message,
		Instance:  r.URL.Path,
		Code:      e.Code,
		Category:  string(e.Category),
		Retryable: e.Retryable,
		TraceID:   traceid.From(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(p)
}

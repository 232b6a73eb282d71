package pipeline

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/local/docverify/internal/ocr"
	"github.com/local/docverify/internal/verify"
)

// Stage names in execution order.
const (
	StageAcquire      = "acquire"
	StageOCR          = "ocr"
	StageDocTypeCheck = "doc_type_check"
	StageExtract      = "extract"
	StageValidate     = "validate_and_finalize"
)

// Source identifies where the document comes from: a local upload already on
// disk, or an object-store key to fetch.
type Source struct {
	LocalPath    string
	OriginalName string
	S3Key        string
}

// Request carries everything a pipeline invocation needs.
type Request struct {
	DeclaredFIO       string
	ExternalRequestID *int64
	IIN               string
	FirstName         string
	LastName          string
	SecondName        string
	Source            Source
}

// APIError is one error entry of the response body.
type APIError struct {
	Code    string  `json:"code"`
	Message *string `json:"message"`
}

// Result is the business outcome returned to the HTTP layer. System failures
// never produce a Result; they surface as typed errors instead.
type Result struct {
	RunID                 string     `json:"run_id"`
	Verdict               bool       `json:"verdict"`
	Errors                []APIError `json:"errors"`
	ProcessingTimeSeconds float64    `json:"processing_time_seconds"`

	Status string `json:"-"`
}

// Run is the mutable context owned by the orchestrator for one invocation.
// Stages fill it in strictly left-to-right.
type Run struct {
	ID      string
	TraceID string
	Request Request

	Dir          string
	PDFPath      string
	OriginalName string
	FileSize     int64

	Pages  ocr.Pages
	Record verify.Record

	start   time.Time
	Timings map[string]time.Duration
}

func newRun(workDir, traceID string, req Request) *Run {
	id := uuid.NewString()
	return &Run{
		ID:      id,
		TraceID: traceID,
		Request: req,
		Dir:     filepath.Join(workDir, id),
		start:   time.Now(),
		Timings: make(map[string]time.Duration, 5),
	}
}

// Elapsed is the wall-clock run duration from a monotonic source.
func (r *Run) Elapsed() time.Duration { return time.Since(r.start) }

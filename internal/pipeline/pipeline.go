package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/breaker"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/filetype"
	"github.com/local/docverify/internal/metrics"
	"github.com/local/docverify/internal/prompts"
	"github.com/local/docverify/internal/storage"
	"github.com/local/docverify/internal/store"
	"github.com/local/docverify/internal/traceid"
	"github.com/local/docverify/internal/verify"
)

// Grace period for the persistence write when the run context is already dead.
const persistTimeout = 10 * time.Second

// Fetcher downloads a source object into the run directory.
type Fetcher interface {
	FetchToFile(ctx context.Context, key, destPath string) (*storage.FileMetadata, error)
}

// OCRClient runs the two-phase recognition conversation.
type OCRClient interface {
	Recognize(ctx context.Context, pdfPath string) ([]byte, error)
}

// LLMClient produces one completion for one prompt.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) ([]byte, error)
}

// RowWriter persists the single run row.
type RowWriter interface {
	Upsert(ctx context.Context, row store.Row) error
}

// StampDetector is the optional stamp-detection hook. Detection failures are
// warnings, never run failures.
type StampDetector interface {
	Detect(ctx context.Context, pdfPath string) (bool, error)
}

// Dependencies wires the pipeline's collaborators.
type Dependencies struct {
	Fetcher  Fetcher
	OCR      OCRClient
	LLM      LLMClient
	Writer   RowWriter
	Breakers *breaker.Registry
	Prompts  *prompts.Library
	Detector *filetype.Detector
	Checker  *verify.Checker
	Stamp    StampDetector
}

// Pipeline executes the five-stage verification state machine and owns the
// run context lifecycle, including the single DB upsert.
type Pipeline struct {
	cfg  config.PipelineConfig
	deps Dependencies
}

func New(cfg config.PipelineConfig, deps Dependencies) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// Execute runs one verification end-to-end. Business outcomes (including
// verdict=false) come back as a Result; system and client failures come back
// as a typed error after the run row has been written.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	run := newRun(p.cfg.WorkDir, traceid.From(ctx), req)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Deadline)
	defer cancel()

	logger := log.With().Str("run_id", run.ID).Str("trace_id", run.TraceID).Logger()
	logger.Info().Str("s3_key", req.Source.S3Key).Str("file", req.Source.OriginalName).Msg("run started")

	if err := p.runStages(ctx, run, logger); err != nil {
		return nil, p.fail(run, err, logger)
	}
	return p.finalize(ctx, run, logger), nil
}

func (p *Pipeline) runStages(ctx context.Context, run *Run, logger zerolog.Logger) *apperr.Error {
	stages := []struct {
		name string
		fn   func(context.Context, *Run) error
	}{
		{StageAcquire, p.acquire},
		{StageOCR, p.recognize},
		{StageDocTypeCheck, p.classify},
		{StageExtract, p.extract},
	}

	for _, st := range stages {
		start := time.Now()
		err := st.fn(ctx, run)
		dur := time.Since(start)
		run.Timings[st.name] = dur
		metrics.ObserveStage(st.name, dur)

		if err != nil {
			e := apperr.From(err)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				e = apperr.Wrap(apperr.CodeRequestTimeout, "run deadline exceeded during "+st.name, false, err)
			}
			metrics.StageFailed(st.name, e.Code)
			logger.Error().Err(err).
				Str("stage", st.name).Str("code", e.Code).Str("category", string(e.Category)).
				Dur("stage_duration", dur).Msg("stage failed")
			return e
		}
		logger.Debug().Str("stage", st.name).Dur("stage_duration", dur).Msg("stage complete")
	}

	if p.cfg.StampDetection && p.deps.Stamp != nil {
		if found, err := p.deps.Stamp.Detect(ctx, run.PDFPath); err != nil {
			logger.Warn().Err(err).Msg("stamp detection failed, continuing without it")
		} else {
			run.Record.StampFound = &found
		}
	}
	return nil
}

// finalize runs the validator, writes the row and the result artifact, and
// cleans the working directory.
func (p *Pipeline) finalize(ctx context.Context, run *Run, logger zerolog.Logger) *Result {
	start := time.Now()

	vres := p.deps.Checker.Check(run.Request.DeclaredFIO, run.Record)
	status := "success"
	if !vres.Verdict {
		status = string(apperr.CategoryBusiness)
	}

	result := &Result{
		RunID:                 run.ID,
		Verdict:               vres.Verdict,
		Errors:                toAPIErrors(vres.Errors),
		ProcessingTimeSeconds: run.Elapsed().Seconds(),
		Status:                status,
	}

	p.persist(ctx, p.buildRow(run, &vres, nil, status), logger)
	p.writeResultArtifact(run, result, logger)

	dur := time.Since(start)
	run.Timings[StageValidate] = dur
	metrics.ObserveStage(StageValidate, dur)
	metrics.RunFinished(status)
	p.cleanup(run, logger)

	// total includes the finalize stage itself
	result.ProcessingTimeSeconds = run.Elapsed().Seconds()
	logger.Info().Bool("verdict", vres.Verdict).Str("status", status).
		Float64("processing_time_seconds", result.ProcessingTimeSeconds).
		Strs("errors", vres.Errors).Msg("run finished")
	return result
}

// fail finalizes a run terminated by a typed stage failure: one row, cleanup,
// and the error handed back to the transport layer.
func (p *Pipeline) fail(run *Run, e *apperr.Error, logger zerolog.Logger) *apperr.Error {
	status := string(e.Category)
	p.persist(context.Background(), p.buildRow(run, nil, e, status), logger)
	metrics.RunFinished(status)
	p.cleanup(run, logger)

	logger.Info().Str("status", status).Str("code", e.Code).
		Float64("processing_time_seconds", run.Elapsed().Seconds()).Msg("run finished")
	return e
}

// persist writes the single run row. The write never poisons a finished run:
// failure is logged and the response still goes out.
func (p *Pipeline) persist(ctx context.Context, row store.Row, logger zerolog.Logger) {
	// detach from the run deadline so a timed-out run still gets its row
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.deps.Writer.Upsert(wctx, row); err != nil {
		logger.Error().Err(err).Str("stage", StageValidate).Str("code", apperr.CodeInternalError).
			Str("category", string(apperr.CategoryServer)).Msg("failed to persist run row")
	}
}

func (p *Pipeline) buildRow(run *Run, vres *verify.Result, sysErr *apperr.Error, status string) store.Row {
	req := run.Request
	row := store.Row{
		RunID:                 run.ID,
		ExternalRequestID:     req.ExternalRequestID,
		IIN:                   optStr(req.IIN),
		FirstName:             optStr(req.FirstName),
		LastName:              optStr(req.LastName),
		SecondName:            optStr(req.SecondName),
		DeclaredFIO:           req.DeclaredFIO,
		S3Key:                 optStr(req.Source.S3Key),
		OriginalFilename:      optStr(run.OriginalName),
		DocType:               run.Record.DocType,
		ExtractedFIO:          run.Record.FIO,
		DocDate:               run.Record.DocDate,
		Organization:          run.Record.Organization,
		StampFound:            run.Record.StampFound,
		Status:                status,
		CreatedAt:             time.Now().Add(-run.Elapsed()).UTC(),
		CompletedAt:           time.Now().UTC(),
		ProcessingTimeSeconds: run.Elapsed().Seconds(),
		TraceID:               run.TraceID,
	}
	if run.FileSize > 0 {
		size := run.FileSize
		row.FileSizeBytes = &size
	}

	switch {
	case vres != nil:
		row.Verdict = vres.Verdict
		row.FIOMatch = vres.Checks.FIOMatch
		row.DocTypeKnown = vres.Checks.DocTypeKnown
		row.SingleDocType = vres.Checks.SingleDocType
		row.DocDatePresent = vres.Checks.DocDatePresent
		row.DocDateValid = vres.Checks.DocDateValid
		row.Errors = make([]store.ErrorEntry, 0, len(vres.Errors))
		for _, code := range vres.Errors {
			row.Errors = append(row.Errors, store.ErrorEntry{Code: code, Message: messageFor(code)})
		}
	case sysErr != nil:
		cat := string(sysErr.Category)
		retryable := sysErr.Retryable
		row.ErrorCode = &sysErr.Code
		row.ErrorCategory = &cat
		row.ErrorMessage = optStr(sysErr.Message)
		row.ErrorRetryable = &retryable
		row.Errors = []store.ErrorEntry{{Code: sysErr.Code, Message: messageFor(sysErr.Code)}}
	}
	return row
}

func (p *Pipeline) writeResultArtifact(run *Run, result *Result, logger zerolog.Logger) {
	if !p.cfg.ArtifactsEnabled {
		return
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(run.Dir, "result.json"), b, 0o644)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("failed to write result artifact")
	}
}

// cleanup removes temp files; with artifacts enabled the run directory stays
// for the retention janitor, holding only the artifact JSON files.
func (p *Pipeline) cleanup(run *Run, logger zerolog.Logger) {
	if !p.cfg.ArtifactsEnabled {
		if err := os.RemoveAll(run.Dir); err != nil {
			logger.Warn().Err(err).Str("dir", run.Dir).Msg("failed to remove run directory")
		}
		return
	}
	for _, name := range []string{"source", "document.pdf"} {
		path := filepath.Join(run.Dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("file", path).Msg("failed to remove temp file")
		}
	}
}

func toAPIErrors(codes []string) []APIError {
	out := make([]APIError, 0, len(codes))
	for _, code := range codes {
		out = append(out, APIError{Code: code, Message: messageFor(code)})
	}
	return out
}

func messageFor(code string) *string {
	if msg := config.MessageFor(code); msg != "" {
		return &msg
	}
	return nil
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

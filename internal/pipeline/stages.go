package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/llm"
	"github.com/local/docverify/internal/ocr"
	"github.com/local/docverify/internal/prompts"
)

// recognize submits the PDF to the OCR service through its breaker and keeps
// the filtered pages. At least one non-empty page must survive.
func (p *Pipeline) recognize(ctx context.Context, run *Run) error {
	var raw []byte
	err := p.deps.Breakers.Do("ocr", func() error {
		var callErr error
		raw, callErr = p.deps.OCR.Recognize(ctx, run.PDFPath)
		return callErr
	})
	if err != nil {
		return err
	}

	pages, err := ocr.FilterPages(raw)
	if err != nil {
		return apperr.Wrap(apperr.CodeOCRFailed, "filter OCR response", false, err)
	}
	if len(pages.Pages) == 0 {
		return apperr.Server(apperr.CodeOCREmptyPages, "no readable pages in document", false)
	}
	run.Pages = pages

	p.writeArtifact(run, "ocr_pages.json", []byte(pages.JSON()))
	return nil
}

// docTypeResult is the classifier's expected payload shape.
type docTypeResult struct {
	DocType            *string `json:"doc_type"`
	SingleDocTypeValid *bool   `json:"single_doc_type_valid"`
}

// classify asks the LLM which registry type the document is.
func (p *Pipeline) classify(ctx context.Context, run *Run) error {
	payload, err := p.completePrompt(ctx, prompts.DocTypeCheck, run)
	if err != nil {
		return wrapLLMFailure(err, apperr.CodeDTCFailed, apperr.CodeDTCParseError)
	}

	var res docTypeResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return apperr.Wrap(apperr.CodeDTCParseError, "decode doc-type result", false, err)
	}
	if res.SingleDocTypeValid == nil {
		return apperr.Server(apperr.CodeDTCParseError, "doc-type result missing single_doc_type_valid", false)
	}
	if !*res.SingleDocTypeValid {
		return apperr.Client(apperr.CodeMultipleDocuments, "file contains multiple document types")
	}

	run.Record.DocType = res.DocType
	run.Record.SingleDocTypeValid = true
	return nil
}

// extractResult is the extractor's expected payload shape. Nulls are fine;
// wrong types are schema violations surfaced by json.Unmarshal.
type extractResult struct {
	FIO          *string `json:"fio"`
	DocDate      *string `json:"doc_date"`
	Organization *string `json:"organization"`
}

// extract asks the LLM for the applicant fields.
func (p *Pipeline) extract(ctx context.Context, run *Run) error {
	payload, err := p.completePrompt(ctx, prompts.ExtractFields, run)
	if err != nil {
		return wrapLLMFailure(err, apperr.CodeExtractFailed, apperr.CodeExtractSchemaInvalid)
	}

	var res extractResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return apperr.Wrap(apperr.CodeExtractSchemaInvalid, "decode extraction result", false, err)
	}

	run.Record.FIO = emptyToNil(res.FIO)
	run.Record.DocDate = emptyToNil(res.DocDate)
	run.Record.Organization = emptyToNil(res.Organization)
	return nil
}

// completePrompt renders the named template with the OCR pages JSON, runs the
// completion through the LLM breaker and unwraps the envelope.
func (p *Pipeline) completePrompt(ctx context.Context, name string, run *Run) ([]byte, error) {
	tmpl, err := p.deps.Prompts.Load(name)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternalError, "load prompt "+name, false, err)
	}
	prompt, err := prompts.Render(tmpl, run.Pages.JSON())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternalError, "render prompt "+name, false, err)
	}

	var raw []byte
	err = p.deps.Breakers.Do("llm", func() error {
		var callErr error
		raw, callErr = p.deps.LLM.Complete(ctx, prompt)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("run_id", run.ID).Str("prompt", name).RawJSON("response", rawForLog(raw)).Msg("LLM response")
	return llm.ExtractJSON(raw)
}

// wrapLLMFailure rebrands generic LLM errors with the stage's own codes.
// Breaker and timeout codes keep their identity; so do client errors.
func wrapLLMFailure(err error, failedCode, parseCode string) error {
	e, ok := apperr.As(err)
	if !ok {
		return apperr.Wrap(failedCode, "LLM call failed", false, err)
	}
	switch e.Code {
	case apperr.CodeLLMFailed:
		return apperr.Wrap(failedCode, e.Message, e.Retryable, e)
	case apperr.CodeLLMFilterParseError:
		return apperr.Wrap(parseCode, e.Message, false, e)
	}
	return err
}

func (p *Pipeline) writeArtifact(run *Run, name string, data []byte) {
	if !p.cfg.ArtifactsEnabled {
		return
	}
	path := filepath.Join(run.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Str("artifact", name).Msg("failed to write artifact")
	}
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func rawForLog(b []byte) []byte {
	const max = 4096
	if len(b) <= max && json.Valid(b) {
		return b
	}
	trimmed, _ := json.Marshal(string(b[:min(len(b), max)]))
	return []byte(`{"raw":` + string(trimmed) + `}`)
}

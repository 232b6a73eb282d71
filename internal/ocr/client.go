package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/metrics"
)

const (
	uploadAttempts   = 3
	maxResponseBytes = 32 << 20
)

var doneStatuses = map[string]bool{
	"done": true, "completed": true, "success": true, "finished": true, "ready": true,
}

var failedStatuses = map[string]bool{
	"failed": true, "error": true,
}

// Client talks the two-phase OCR protocol: multipart upload, then poll for
// the recognized result. Concurrent conversations are bounded by a
// process-wide semaphore so the external service is never overwhelmed.
type Client struct {
	http         *http.Client
	baseURL      string
	pollInterval time.Duration
	pollTimeout  time.Duration
	sem          *semaphore.Weighted
}

func NewClient(cfg config.OCRConfig) *Client {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Recognize uploads the PDF and polls until the service finishes, returning
// the raw completed response for the pages filter. All failures come back as
// typed errors, never raw transport errors.
func (c *Client) Recognize(ctx context.Context, pdfPath string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.CodeOCRFailed, "acquire OCR slot", true, err)
	}
	defer c.sem.Release(1)
	metrics.OCRInflightAdd(1)
	defer metrics.OCRInflightAdd(-1)

	start := time.Now()
	id, err := c.upload(ctx, pdfPath)
	if err != nil {
		metrics.ObserveProvider("ocr", "upload_error", time.Since(start))
		return nil, err
	}

	body, err := c.poll(ctx, id)
	if err != nil {
		result := "error"
		if e, ok := apperr.As(err); ok && e.Code == apperr.CodeOCRTimeout {
			result = "timeout"
		}
		metrics.ObserveProvider("ocr", result, time.Since(start))
		return nil, err
	}

	metrics.ObserveProvider("ocr", "ok", time.Since(start))
	log.Debug().Str("file_id", id).Int("bytes", len(body)).RawJSON("response", truncateJSON(body)).Msg("OCR result")
	return body, nil
}

// upload POSTs the PDF and returns the opaque file id. 429 and 5xx are
// retried up to uploadAttempts, honoring Retry-After.
func (c *Client) upload(ctx context.Context, pdfPath string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		id, retryAfter, err := c.tryUpload(ctx, pdfPath)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !apperr.IsRetryable(err) || attempt == uploadAttempts {
			break
		}

		delay := retryAfter
		if delay <= 0 {
			delay = time.Second * time.Duration(attempt)
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("OCR upload retry")
		select {
		case <-ctx.Done():
			return "", apperr.Wrap(apperr.CodeOCRFailed, "upload canceled", true, ctx.Err())
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (c *Client) tryUpload(ctx context.Context, pdfPath string) (string, time.Duration, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeFileSaveFailed, "open PDF for upload", false, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(pdfPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/pdf", pr)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeOCRFailed, "build upload request", false, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeOCRFailed, "upload PDF", true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", retryAfter(resp), apperr.Server(apperr.CodeOCRFailed, "OCR rate limited", true)
	case resp.StatusCode >= 500:
		return "", 0, apperr.Server(apperr.CodeOCRFailed, fmt.Sprintf("OCR upload status %d", resp.StatusCode), true)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", 0, apperr.Server(apperr.CodeOCRFailed, fmt.Sprintf("OCR upload status %d", resp.StatusCode), false)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeOCRFailed, "read upload response", true, err)
	}
	id := extractFileID(body)
	if id == "" {
		return "", 0, apperr.Server(apperr.CodeOCRFailed, "upload response has no file id", false)
	}
	return id, 0, nil
}

// poll fetches /v2/result/{id} until a terminal status or the poll ceiling.
func (c *Client) poll(ctx context.Context, id string) ([]byte, error) {
	pctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	for {
		body, status, wait, err := c.fetchResult(pctx, id)
		switch {
		case err != nil && !apperr.IsRetryable(err):
			return nil, err
		case err == nil && doneStatuses[status]:
			return body, nil
		case err == nil && failedStatuses[status]:
			return nil, apperr.Server(apperr.CodeOCRFailed, "OCR reported status "+status, false)
		}

		if wait < c.pollInterval {
			wait = c.pollInterval
		}
		select {
		case <-pctx.Done():
			if ctx.Err() != nil {
				return nil, apperr.Wrap(apperr.CodeOCRFailed, "poll canceled", true, ctx.Err())
			}
			return nil, apperr.Server(apperr.CodeOCRTimeout,
				fmt.Sprintf("no result for %s within %s", id, c.pollTimeout), true)
		case <-time.After(wait):
		}
	}
}

func (c *Client) fetchResult(ctx context.Context, id string) ([]byte, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/result/"+id, nil)
	if err != nil {
		return nil, "", 0, apperr.Wrap(apperr.CodeOCRFailed, "build result request", false, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", 0, apperr.Wrap(apperr.CodeOCRFailed, "fetch OCR result", true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", retryAfter(resp), apperr.Server(apperr.CodeOCRFailed, "OCR rate limited", true)
	case resp.StatusCode >= 500:
		return nil, "", 0, apperr.Server(apperr.CodeOCRFailed, fmt.Sprintf("OCR result status %d", resp.StatusCode), true)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", 0, apperr.Server(apperr.CodeOCRFailed, fmt.Sprintf("OCR result status %d", resp.StatusCode), false)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", 0, apperr.Wrap(apperr.CodeOCRFailed, "read OCR result", true, err)
	}

	var probe struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(body, &probe)
	return body, strings.ToLower(probe.Status), 0, nil
}

// HealthCheck reports the service reachable when any HTTP response arrives.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("OCR unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func extractFileID(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"id", "file_id", "task_id"} {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// truncateJSON keeps debug log lines bounded for very large OCR payloads.
func truncateJSON(b []byte) []byte {
	const max = 4096
	if len(b) <= max {
		return b
	}
	return []byte(fmt.Sprintf(`{"truncated":true,"bytes":%d}`, len(b)))
}

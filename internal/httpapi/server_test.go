package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/pipeline"
	"github.com/local/docverify/internal/statuscheck"
)

type fakeRunner struct {
	result  *pipeline.Result
	err     error
	last    pipeline.Request
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Execute(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.last = req
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func okResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:                 "run-1",
		Verdict:               true,
		Errors:                []pipeline.APIError{},
		ProcessingTimeSeconds: 1.5,
		Status:                "success",
	}
}

func newTestMux(runner Runner, maxInflight int) *http.ServeMux {
	cfg := config.HTTPConfig{MaxUploadBytes: 50 << 20, MaxInflight: maxInflight}
	srv := New(cfg, runner, statuscheck.New(statuscheck.Options{}), 30*time.Second)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return mux
}

func multipartBody(t *testing.T, fio string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fio != "" {
		require.NoError(t, mw.WriteField("fio", fio))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestVerifyHappyPath(t *testing.T) {
	runner := &fakeRunner{result: okResult()}
	mux := newTestMux(runner, 10)

	body, ctype := multipartBody(t, "Иванов Иван Иванович", "doc.pdf", []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	var resp struct {
		RunID   string              `json:"run_id"`
		Verdict bool                `json:"verdict"`
		Errors  []pipeline.APIError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.True(t, resp.Verdict)
	assert.Empty(t, resp.Errors)

	assert.Equal(t, "Иванов Иван Иванович", runner.last.DeclaredFIO)
	assert.Equal(t, "doc.pdf", runner.last.Source.OriginalName)
	assert.Empty(t, runner.last.Source.S3Key)
}

func TestVerifyMissingFIO(t *testing.T) {
	mux := newTestMux(&fakeRunner{result: okResult()}, 10)

	body, ctype := multipartBody(t, "", "doc.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")

	var p problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, apperr.CodeValidationError, p.Code)
	assert.Equal(t, "client_error", p.Category)
	assert.NotEmpty(t, p.TraceID)
}

func TestVerifyUploadTooLarge(t *testing.T) {
	cfg := config.HTTPConfig{MaxUploadBytes: 1024, MaxInflight: 10}
	srv := New(cfg, &fakeRunner{result: okResult()}, statuscheck.New(statuscheck.Options{}), 30*time.Second)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	body, ctype := multipartBody(t, "Иванов Иван", "doc.pdf", bytes.Repeat([]byte("a"), 8192))
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var p problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, apperr.CodePayloadTooLarge, p.Code)
	assert.Equal(t, "client_error", p.Category)
}

func TestVerifyMissingFile(t *testing.T) {
	mux := newTestMux(&fakeRunner{result: okResult()}, 10)

	body, ctype := multipartBody(t, "Иванов Иван", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestVerifySystemErrorsRenderProblems(t *testing.T) {
	tests := []struct {
		name       string
		err        *apperr.Error
		wantStatus int
	}{
		{"not found", apperr.Client(apperr.CodeResourceNotFound, "object missing"), http.StatusNotFound},
		{"ocr outage", apperr.Server(apperr.CodeOCRFailed, "OCR status 503", true), http.StatusBadGateway},
		{"circuit open", apperr.Server(apperr.CodeServiceUnavailable, "ocr circuit open", false), http.StatusServiceUnavailable},
		{"run deadline", apperr.Server(apperr.CodeRequestTimeout, "deadline exceeded", false), http.StatusGatewayTimeout},
		{"too many pages", apperr.Client(apperr.CodePDFTooManyPages, "document has 5 pages"), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&fakeRunner{err: tt.err}, 10)
			body, ctype := multipartBody(t, "Иванов Иван", "doc.pdf", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			var p problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.err.Code, p.Code)
			assert.Equal(t, tt.wantStatus, p.Status)
			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "30", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestVerifyHonorsInboundTraceID(t *testing.T) {
	mux := newTestMux(&fakeRunner{result: okResult()}, 10)

	body, ctype := multipartBody(t, "Иванов Иван", "doc.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("X-Trace-ID", "trace-abc")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-ID"))
}

func TestKafkaVerify(t *testing.T) {
	runner := &fakeRunner{result: okResult()}
	mux := newTestMux(runner, 10)

	payload := `{"request_id": 123, "s3_path": "docs/abc.pdf", "iin": 990101300123,
		"first_name": "Иван", "last_name": "Иванов", "second_name": "Иванович"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/kafka/verify", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Иванов Иван Иванович", runner.last.DeclaredFIO)
	assert.Equal(t, "990101300123", runner.last.IIN)
	assert.Equal(t, "docs/abc.pdf", runner.last.Source.S3Key)
	require.NotNil(t, runner.last.ExternalRequestID)
	assert.Equal(t, int64(123), *runner.last.ExternalRequestID)
}

func TestKafkaVerifyStringIINAndNoPatronymic(t *testing.T) {
	runner := &fakeRunner{result: okResult()}
	mux := newTestMux(runner, 10)

	payload := `{"request_id": 7, "s3_path": "docs/x.pdf", "iin": "990101300123",
		"first_name": "Иван", "last_name": "Иванов", "second_name": null}`
	req := httptest.NewRequest(http.MethodPost, "/v1/kafka/verify", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Иванов Иван", runner.last.DeclaredFIO)
}

func TestKafkaVerifyTrimsNameWhitespace(t *testing.T) {
	runner := &fakeRunner{result: okResult()}
	mux := newTestMux(runner, 10)

	payload := `{"request_id": 9, "s3_path": "docs/y.pdf", "iin": "990101300123",
		"first_name": " Иван ", "last_name": " Иванов ", "second_name": " Иванович "}`
	req := httptest.NewRequest(http.MethodPost, "/v1/kafka/verify", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Иванов Иван Иванович", runner.last.DeclaredFIO)
	assert.Equal(t, "Иванов", runner.last.LastName)
	assert.Equal(t, "Иван", runner.last.FirstName)
	assert.Equal(t, "Иванович", runner.last.SecondName)
}

func TestKafkaVerifyValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"bad iin", `{"request_id": 1, "s3_path": "a.pdf", "iin": "12345", "first_name": "И", "last_name": "И"}`},
		{"missing s3 path", `{"request_id": 1, "iin": "990101300123", "first_name": "И", "last_name": "И"}`},
		{"missing names", `{"request_id": 1, "s3_path": "a.pdf", "iin": "990101300123"}`},
		{"malformed json", `{"request_id": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&fakeRunner{result: okResult()}, 10)
			req := httptest.NewRequest(http.MethodPost, "/v1/kafka/verify", strings.NewReader(tt.payload))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			var p problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, apperr.CodeValidationError, p.Code)
		})
	}
}

func TestInflightLimitRejectsWith429(t *testing.T) {
	runner := &fakeRunner{
		result:  okResult(),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	mux := newTestMux(runner, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		body, ctype := multipartBody(t, "Иванов Иван", "doc.pdf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/v1/verify", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}()
	<-runner.started

	payload := `{"request_id": 1, "s3_path": "a.pdf", "iin": "990101300123", "first_name": "И", "last_name": "И"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/kafka/verify", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	close(runner.block)
	<-done
}

func TestHealthReportsUnconfiguredDependencies(t *testing.T) {
	mux := newTestMux(&fakeRunner{result: okResult()}, 10)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var summary statuscheck.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.False(t, summary.OK)
}

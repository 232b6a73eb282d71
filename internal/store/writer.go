package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/metrics"
	"github.com/local/docverify/internal/retry"
)

// ErrorEntry is one business or system error persisted in the errors array.
type ErrorEntry struct {
	Code    string  `json:"code"`
	Message *string `json:"message"`
}

// Row is the single persistence record written per run.
type Row struct {
	RunID             string
	ExternalRequestID *int64
	IIN               *string
	FirstName         *string
	LastName          *string
	SecondName        *string
	DeclaredFIO       string
	S3Key             *string
	OriginalFilename  *string
	FileSizeBytes     *int64

	DocType      *string
	ExtractedFIO *string
	DocDate      *string
	Organization *string
	StampFound   *bool

	FIOMatch       bool
	DocTypeKnown   bool
	SingleDocType  bool
	DocDatePresent bool
	DocDateValid   bool

	Verdict bool
	Errors  []ErrorEntry
	Status  string

	ErrorCode      *string
	ErrorCategory  *string
	ErrorMessage   *string
	ErrorRetryable *bool

	CreatedAt             time.Time
	CompletedAt           time.Time
	ProcessingTimeSeconds float64
	TraceID               string
}

const upsertSQL = `
INSERT INTO verification_runs (
    run_id, external_request_id, iin, first_name, last_name, second_name,
    declared_fio, s3_key, original_filename, file_size_bytes,
    doc_type, extracted_fio, doc_date, organization, stamp_found,
    fio_match, doc_type_known, single_doc_type, doc_date_present, doc_date_valid,
    verdict, errors, status,
    error_code, error_category, error_message, error_retryable,
    created_at, completed_at, processing_time_seconds, trace_id
) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
    $11,$12,$13,$14,$15,
    $16,$17,$18,$19,$20,
    $21,$22,$23,
    $24,$25,$26,$27,
    $28,$29,$30,$31
)
ON CONFLICT (run_id) DO UPDATE SET
    external_request_id = EXCLUDED.external_request_id,
    iin = EXCLUDED.iin,
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    second_name = EXCLUDED.second_name,
    declared_fio = EXCLUDED.declared_fio,
    s3_key = EXCLUDED.s3_key,
    original_filename = EXCLUDED.original_filename,
    file_size_bytes = EXCLUDED.file_size_bytes,
    doc_type = EXCLUDED.doc_type,
    extracted_fio = EXCLUDED.extracted_fio,
    doc_date = EXCLUDED.doc_date,
    organization = EXCLUDED.organization,
    stamp_found = EXCLUDED.stamp_found,
    fio_match = EXCLUDED.fio_match,
    doc_type_known = EXCLUDED.doc_type_known,
    single_doc_type = EXCLUDED.single_doc_type,
    doc_date_present = EXCLUDED.doc_date_present,
    doc_date_valid = EXCLUDED.doc_date_valid,
    verdict = EXCLUDED.verdict,
    errors = EXCLUDED.errors,
    status = EXCLUDED.status,
    error_code = EXCLUDED.error_code,
    error_category = EXCLUDED.error_category,
    error_message = EXCLUDED.error_message,
    error_retryable = EXCLUDED.error_retryable,
    created_at = EXCLUDED.created_at,
    completed_at = EXCLUDED.completed_at,
    processing_time_seconds = EXCLUDED.processing_time_seconds,
    trace_id = EXCLUDED.trace_id`

// Writer persists run rows with last-writer-wins upsert semantics.
type Writer struct {
	pool   *pgxpool.Pool
	policy retry.Policy
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{
		pool: pool,
		policy: retry.Policy{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     10 * time.Second,
		},
	}
}

// Upsert writes the row, retrying transient failures. The caller decides
// whether a final failure is fatal; after a successful pipeline it is only
// logged.
func (w *Writer) Upsert(ctx context.Context, row Row) error {
	errsJSON, err := json.Marshal(row.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors array: %w", err)
	}
	if row.Errors == nil {
		errsJSON = []byte("[]")
	}

	attempt := 0
	return retry.Do(ctx, w.policy, transient, func() error {
		attempt++
		if attempt > 1 {
			metrics.IncDBRetry()
			log.Warn().Str("run_id", row.RunID).Int("attempt", attempt).Msg("retrying run row upsert")
		}
		_, err := w.pool.Exec(ctx, upsertSQL,
			row.RunID, row.ExternalRequestID, row.IIN, row.FirstName, row.LastName, row.SecondName,
			row.DeclaredFIO, row.S3Key, row.OriginalFilename, row.FileSizeBytes,
			row.DocType, row.ExtractedFIO, row.DocDate, row.Organization, row.StampFound,
			row.FIOMatch, row.DocTypeKnown, row.SingleDocType, row.DocDatePresent, row.DocDateValid,
			row.Verdict, errsJSON, row.Status,
			row.ErrorCode, row.ErrorCategory, row.ErrorMessage, row.ErrorRetryable,
			row.CreatedAt, row.CompletedAt, row.ProcessingTimeSeconds, row.TraceID,
		)
		if err != nil {
			return fmt.Errorf("upsert run %s: %w", row.RunID, err)
		}
		return nil
	})
}

// transient reports whether a DB error is worth another attempt. Syntax and
// constraint violations are not; connection-level failures are.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return false
		}
		switch pgErr.Code[:2] {
		case "08", "53", "57", "58", "XX": // connection, resources, operator intervention, system
			return true
		}
		return false
	}
	return true
}

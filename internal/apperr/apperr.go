package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies an error for status mapping and persistence.
type Category string

const (
	CategoryClient   Category = "client_error"
	CategoryServer   Category = "server_error"
	CategoryBusiness Category = "business_error"
)

// Business rule codes. These ride in the errors list of a 200 response and
// are never raised as Go errors by the validator.
const (
	CodeFIOMismatch      = "FIO_MISMATCH"
	CodeFIOMissing       = "FIO_MISSING"
	CodeDocTypeUnknown   = "DOC_TYPE_UNKNOWN"
	CodeMultipleDocTypes = "MULTIPLE_DOC_TYPES"
	CodeDocDateMissing   = "DOC_DATE_MISSING"
	CodeDocDateTooOld    = "DOC_DATE_TOO_OLD"
)

// Client error codes.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodePDFTooManyPages      = "PDF_TOO_MANY_PAGES"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeResourceNotFound     = "RESOURCE_NOT_FOUND"
	CodeMultipleDocuments    = "MULTIPLE_DOCUMENTS"
)

// Server error codes.
const (
	CodeOCRFailed            = "OCR_FAILED"
	CodeOCREmptyPages        = "OCR_EMPTY_PAGES"
	CodeOCRTimeout           = "OCR_TIMEOUT"
	CodeLLMFailed            = "LLM_FAILED"
	CodeLLMTimeout           = "LLM_TIMEOUT"
	CodeLLMFilterParseError  = "LLM_FILTER_PARSE_ERROR"
	CodeDTCFailed            = "DTC_FAILED"
	CodeDTCParseError        = "DTC_PARSE_ERROR"
	CodeExtractFailed        = "EXTRACT_FAILED"
	CodeExtractSchemaInvalid = "EXTRACT_SCHEMA_INVALID"
	CodeS3Error              = "S3_ERROR"
	CodeFileSaveFailed       = "FILE_SAVE_FAILED"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRequestTimeout       = "REQUEST_TIMEOUT"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Error is the typed failure carried through the pipeline: a canonical code,
// a category deciding the response class, a retryability flag, and the
// wrapped cause.
type Error struct {
	Code      string
	Category  Category
	Retryable bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Client builds a non-retryable client error.
func Client(code, message string) *Error {
	return &Error{Code: code, Category: CategoryClient, Message: message}
}

// Server builds a server error; retryable marks transient causes.
func Server(code, message string, retryable bool) *Error {
	return &Error{Code: code, Category: CategoryServer, Retryable: retryable, Message: message}
}

// Wrap builds a server error around cause.
func Wrap(code, message string, retryable bool, cause error) *Error {
	return &Error{Code: code, Category: CategoryServer, Retryable: retryable, Message: message, Err: cause}
}

// As extracts a typed error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// From coerces any error into a typed one. Unknown errors become
// INTERNAL_ERROR.
func From(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return &Error{Code: CodeInternalError, Category: CategoryServer, Message: "unexpected error", Err: err}
}

// IsRetryable reports whether err is a typed error marked retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// HTTPStatus maps the error to the response status of the problem document.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeResourceNotFound:
		return http.StatusNotFound
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeValidationError, CodePDFTooManyPages, CodeUnsupportedMediaType, CodeMultipleDocuments:
		return http.StatusUnprocessableEntity
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeOCRTimeout, CodeLLMTimeout, CodeRequestTimeout:
		return http.StatusGatewayTimeout
	case CodeOCRFailed, CodeLLMFailed, CodeDTCFailed, CodeExtractFailed, CodeS3Error:
		return http.StatusBadGateway
	}
	if e.Category == CategoryClient {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

package storage

import (
	"errors"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docverify/internal/apperr"
)

func TestClassifyMissingObject(t *testing.T) {
	e := classify("docs/a.pdf", &s3types.NoSuchKey{})
	require.Equal(t, apperr.CodeResourceNotFound, e.Code)
	assert.Equal(t, apperr.CategoryClient, e.Category)
	assert.False(t, e.Retryable)
	assert.Contains(t, e.Message, "docs/a.pdf")
}

func TestClassifyHeadNotFound(t *testing.T) {
	e := classify("docs/a.pdf", &s3types.NotFound{})
	assert.Equal(t, apperr.CodeResourceNotFound, e.Code)
}

func TestClassifyGenericNotFoundCode(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	e := classify("k", err)
	assert.Equal(t, apperr.CodeResourceNotFound, e.Code)
}

func TestClassifyCredentialFailure(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	e := classify("k", err)
	require.Equal(t, apperr.CodeS3Error, e.Code)
	assert.Equal(t, apperr.CategoryServer, e.Category)
	assert.False(t, e.Retryable, "credential failures do not heal on retry")
}

func TestClassifyTransportFailure(t *testing.T) {
	e := classify("k", errors.New("dial tcp: connection refused"))
	require.Equal(t, apperr.CodeS3Error, e.Code)
	assert.True(t, e.Retryable)
}

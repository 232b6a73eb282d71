package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"plain network error", errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transient(tt.err))
		})
	}
}

func TestErrorEntryJSONShape(t *testing.T) {
	msg := "ФИО не указано"
	entries := []ErrorEntry{
		{Code: "FIO_MISSING", Message: &msg},
		{Code: "DOC_TYPE_UNKNOWN"},
	}
	b, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"code":"FIO_MISSING","message":"ФИО не указано"},{"code":"DOC_TYPE_UNKNOWN","message":null}]`,
		string(b))
}

package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/validity"
)

func newChecker(t *testing.T) *Checker {
	t.Helper()
	reg := config.NewDocTypeRegistry(40)
	now := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
	eval := validity.NewEvaluator(reg).WithNow(func() time.Time { return now })
	return NewChecker(reg, eval)
}

func str(s string) *string { return &s }

func TestCheckHappyPath(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		DocType:            str("prikaz_o_dekretnom_otpuske"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов Иван Иванович"),
		DocDate:            str("2025-11-01"),
	})
	assert.True(t, res.Verdict)
	assert.Empty(t, res.Errors)
	assert.Equal(t, Checks{
		FIOMatch:       true,
		DocTypeKnown:   true,
		SingleDocType:  true,
		DocDatePresent: true,
		DocDateValid:   true,
	}, res.Checks)
}

func TestCheckFIOMismatch(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Петров Петр Петрович", Record{
		DocType:            str("spravka_o_bolezni"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов Иван"),
		DocDate:            str("2025-11-01"),
	})
	assert.False(t, res.Verdict)
	assert.Equal(t, []string{apperr.CodeFIOMismatch}, res.Errors)
	assert.False(t, res.Checks.FIOMatch)
}

func TestCheckFIOMissingDeclared(t *testing.T) {
	c := newChecker(t)
	res := c.Check("  ", Record{
		DocType:            str("spravka_o_bolezni"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов Иван"),
		DocDate:            str("2025-11-01"),
	})
	assert.Equal(t, []string{apperr.CodeFIOMissing}, res.Errors)
}

func TestCheckExtractedFIOAbsent(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		DocType:            str("spravka_o_bolezni"),
		SingleDocTypeValid: true,
		DocDate:            str("2025-11-01"),
	})
	assert.Equal(t, []string{apperr.CodeFIOMismatch}, res.Errors)
}

func TestCheckExpiredDate(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		DocType:            str("spravka_o_bolezni"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов И.И."),
		DocDate:            str("2024-01-01"),
	})
	assert.False(t, res.Verdict)
	assert.Equal(t, []string{apperr.CodeDocDateTooOld}, res.Errors)
	assert.True(t, res.Checks.DocDatePresent)
	assert.False(t, res.Checks.DocDateValid)
}

func TestCheckMissingDateSkipsWindowCheck(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		DocType:            str("spravka_o_bolezni"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов Иван Иванович"),
	})
	// only the presence code: an absent date is never also "too old"
	assert.Equal(t, []string{apperr.CodeDocDateMissing}, res.Errors)
}

func TestCheckUnparseableDateCountsAsMissing(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		DocType:            str("spravka_o_bolezni"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов Иван Иванович"),
		DocDate:            str("когда-то"),
	})
	assert.Equal(t, []string{apperr.CodeDocDateMissing}, res.Errors)
}

func TestCheckMultipleFailuresKeepOrder(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		SingleDocTypeValid: false,
	})
	assert.False(t, res.Verdict)
	assert.Equal(t, []string{
		apperr.CodeFIOMismatch,
		apperr.CodeDocTypeUnknown,
		apperr.CodeMultipleDocTypes,
		apperr.CodeDocDateMissing,
	}, res.Errors)
}

func TestCheckUnknownDocType(t *testing.T) {
	c := newChecker(t)
	res := c.Check("Иванов Иван Иванович", Record{
		DocType:            str("pismo_schastya"),
		SingleDocTypeValid: true,
		FIO:                str("Иванов Иван Иванович"),
		DocDate:            str("2025-11-01"),
	})
	assert.Equal(t, []string{apperr.CodeDocTypeUnknown}, res.Errors)
}

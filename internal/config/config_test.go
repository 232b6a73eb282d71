package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/local/docverify/internal/apperr"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, int64(50<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, 2*time.Second, cfg.OCR.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.OCR.PollTimeout)
	assert.Equal(t, 60*time.Second, cfg.OCR.RequestTimeout)
	assert.Equal(t, 5, cfg.OCR.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 2, cfg.DB.MinConns)
	assert.Equal(t, 10, cfg.DB.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.DB.AcquireTimeout)
	assert.Equal(t, 120*time.Second, cfg.Pipeline.Deadline)
	assert.Equal(t, 3, cfg.Pipeline.MaxPDFPages)
	assert.True(t, cfg.Pipeline.ArtifactsEnabled)
	assert.False(t, cfg.Pipeline.StampDetection)
	assert.Equal(t, 5, cfg.Breaker.Failures)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, 40, cfg.Validity.DefaultDays)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("OCR_BASE_URL", "http://ocr.internal:9000/")
	t.Setenv("MAX_PDF_PAGES", "5")
	t.Setenv("S3_TLS_SKIP_VERIFY", "yes")
	t.Setenv("PIPELINE_DEADLINE", "90s")
	t.Setenv("LLM_TEMPERATURE", "0.7")

	cfg := FromEnv()

	assert.Equal(t, "http://ocr.internal:9000", cfg.OCR.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 5, cfg.Pipeline.MaxPDFPages)
	assert.True(t, cfg.S3.TLSSkipVerify)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Deadline)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_PDF_PAGES", "three")
	t.Setenv("OCR_POLL_INTERVAL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.Pipeline.MaxPDFPages)
	assert.Equal(t, 2*time.Second, cfg.OCR.PollInterval)
}

func TestDocTypeRegistry(t *testing.T) {
	reg := NewDocTypeRegistry(40)

	assert.True(t, reg.Known("spravka_o_bolezni"))
	assert.True(t, reg.Known("prikaz_o_dekretnom_otpuske"))
	assert.False(t, reg.Known("dogovor_arendy"))

	assert.Equal(t, 40, reg.ValidityDays("spravka_o_bolezni"))
	assert.Equal(t, 180, reg.ValidityDays("prikaz_o_dekretnom_otpuske"))
	assert.Equal(t, 365, reg.ValidityDays("svidetelstvo_o_rozhdenii"))
	assert.Equal(t, 360, reg.ValidityDays("spravka_ob_invalidnosti"))
	assert.Equal(t, 40, reg.ValidityDays("unknown_type"), "unlisted types fall back to default")

	keys := reg.Keys()
	assert.Len(t, keys, 11)
	assert.IsIncreasing(t, keys)
}

func TestMessageFor(t *testing.T) {
	assert.NotEmpty(t, MessageFor(apperr.CodeFIOMismatch))
	assert.NotEmpty(t, MessageFor(apperr.CodeDocDateTooOld))
	assert.Empty(t, MessageFor("NOT_A_CODE"))
}

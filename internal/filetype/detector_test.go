package filetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name           string
		content        []byte
		wantMIME       string
		wantSupported  bool
		wantNeedsToPDF bool
	}{
		{
			name:          "pdf",
			content:       []byte("%PDF-1.4\n%fake\n"),
			wantMIME:      "application/pdf",
			wantSupported: true,
		},
		{
			name:           "png",
			content:        []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"),
			wantMIME:       "image/png",
			wantSupported:  true,
			wantNeedsToPDF: true,
		},
		{
			name:           "jpeg",
			content:        []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00},
			wantMIME:       "image/jpeg",
			wantSupported:  true,
			wantNeedsToPDF: true,
		},
		{
			name:     "plain text",
			content:  []byte("just some notes, not a scan"),
			wantMIME: "text/plain; charset=utf-8",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSample(t, "sample", tt.content)
			info, err := New().Detect(path)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMIME, info.MIMEType)
			assert.Equal(t, tt.wantSupported, info.Supported)
			assert.Equal(t, tt.wantNeedsToPDF, info.NeedsPDFConversion())
		})
	}
}

func TestDetectIgnoresFilename(t *testing.T) {
	// a .pdf name over image bytes still classifies as an image
	path := writeSample(t, "scan.pdf", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	info, err := New().Detect(path)
	require.NoError(t, err)
	assert.True(t, info.IsImage)
	assert.False(t, info.IsPDF)
}

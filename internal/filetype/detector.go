package filetype

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Info contains detected file type information.
type Info struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	IsImage     bool
	Supported   bool
	Description string
}

// Detector identifies file types by magic bytes, never by filename. Only
// pdf/jpg/jpeg/png are accepted by the pipeline.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect reads the file's magic bytes and classifies it against the allowlist.
func (d *Detector) Detect(filePath string) (*Info, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("detect file type: %w", err)
	}

	info := &Info{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Bool("supported", info.Supported).
		Str("file", filePath).Msg("detected file type")

	return info, nil
}

func (d *Detector) classify(info *Info) {
	switch info.MIMEType {
	case "application/pdf":
		info.IsPDF = true
		info.Supported = true
		info.Description = "PDF document"

	case "image/jpeg":
		info.IsImage = true
		info.Supported = true
		info.Description = "JPEG image"

	case "image/png":
		info.IsImage = true
		info.Supported = true
		info.Description = "PNG image"

	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// NeedsPDFConversion reports whether the file must be converted to PDF before
// OCR submission (true for accepted images).
func (i *Info) NeedsPDFConversion() bool {
	return i.Supported && i.IsImage
}

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/docverify/internal/apperr"
)

// Images are placed on A4 pages at this resolution when converted to PDF.
const importDPI = 150

// acquire copies the payload into the run directory, enforces the media-type
// allowlist, converts images to PDF and bounds the page count.
func (p *Pipeline) acquire(ctx context.Context, run *Run) error {
	if err := os.MkdirAll(run.Dir, 0o755); err != nil {
		return apperr.Wrap(apperr.CodeFileSaveFailed, "create run directory", false, err)
	}

	src := filepath.Join(run.Dir, "source")
	if key := run.Request.Source.S3Key; key != "" {
		meta, err := p.deps.Fetcher.FetchToFile(ctx, key, src)
		if err != nil {
			return err
		}
		run.FileSize = meta.Size
		run.OriginalName = meta.OriginalName
		if run.OriginalName == "" {
			run.OriginalName = filepath.Base(key)
		}
	} else {
		size, err := copyFile(run.Request.Source.LocalPath, src)
		if err != nil {
			return apperr.Wrap(apperr.CodeFileSaveFailed, "copy upload into run directory", false, err)
		}
		run.FileSize = size
		run.OriginalName = run.Request.Source.OriginalName
	}

	info, err := p.deps.Detector.Detect(src)
	if err != nil {
		return apperr.Wrap(apperr.CodeFileSaveFailed, "detect file type", false, err)
	}
	if !info.Supported {
		return apperr.Client(apperr.CodeUnsupportedMediaType, info.Description)
	}

	pdf := filepath.Join(run.Dir, "document.pdf")
	if info.NeedsPDFConversion() {
		if err := imageToPDF(src, pdf); err != nil {
			return apperr.Wrap(apperr.CodeFileSaveFailed, "convert image to PDF", false, err)
		}
	} else if err := os.Rename(src, pdf); err != nil {
		return apperr.Wrap(apperr.CodeFileSaveFailed, "move PDF into place", false, err)
	}

	// page count reads the page index only, no rendering
	pages, err := pdfapi.PageCountFile(pdf)
	if err != nil {
		return apperr.Wrap(apperr.CodeFileSaveFailed, "count PDF pages", false, err)
	}
	if pages > p.cfg.MaxPDFPages {
		return apperr.Client(apperr.CodePDFTooManyPages,
			fmt.Sprintf("document has %d pages, limit is %d", pages, p.cfg.MaxPDFPages))
	}

	run.PDFPath = pdf
	return nil
}

func imageToPDF(imgPath, pdfPath string) error {
	imp, err := pdfapi.Import(fmt.Sprintf("form:A4, pos:c, dpi:%d", importDPI), types.POINTS)
	if err != nil {
		return fmt.Errorf("parse import config: %w", err)
	}
	if err := pdfapi.ImportImagesFile([]string{imgPath}, pdfPath, imp, nil); err != nil {
		return fmt.Errorf("import image: %w", err)
	}
	return nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

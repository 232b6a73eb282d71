package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/pipeline"
)

// handleVerify accepts a multipart upload (file + fio) and runs the pipeline
// synchronously. Business verdicts, including false ones, are 200 responses.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	release, ok := s.admit(w, r)
	if !ok {
		return
	}
	defer release()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeProblem(w, r, apperr.Client(apperr.CodePayloadTooLarge, "upload exceeds the size limit"))
			return
		}
		s.writeProblem(w, r, apperr.Client(apperr.CodeValidationError, "malformed multipart body"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	fio := strings.TrimSpace(r.FormValue("fio"))
	if fio == "" {
		s.writeProblem(w, r, apperr.Client(apperr.CodeValidationError, "fio form field is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeProblem(w, r, apperr.Client(apperr.CodeValidationError, "file form part is required"))
		return
	}
	defer file.Close()

	tmpPath, err := spoolUpload(file)
	if err != nil {
		s.writeProblem(w, r, apperr.Wrap(apperr.CodeFileSaveFailed, "spool upload to disk", false, err))
		return
	}
	defer os.Remove(tmpPath)

	result, err := s.runner.Execute(r.Context(), pipeline.Request{
		DeclaredFIO: fio,
		Source: pipeline.Source{
			LocalPath:    tmpPath,
			OriginalName: header.Filename,
		},
	})
	if err != nil {
		s.writeProblem(w, r, apperr.From(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// kafkaVerifyRequest is the queue-event body relayed by the upstream
// consumer. IIN arrives as int or string depending on the producer.
type kafkaVerifyRequest struct {
	RequestID  int64      `json:"request_id" validate:"required"`
	S3Path     string     `json:"s3_path" validate:"required"`
	IIN        flexString `json:"iin" validate:"required,iin"`
	FirstName  string     `json:"first_name" validate:"required"`
	LastName   string     `json:"last_name" validate:"required"`
	SecondName *string    `json:"second_name"`
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// handleKafkaVerify accepts the queue event relayed as JSON and runs the same
// pipeline against an object-store source.
func (s *Server) handleKafkaVerify(w http.ResponseWriter, r *http.Request) {
	release, ok := s.admit(w, r)
	if !ok {
		return
	}
	defer release()

	var req kafkaVerifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		s.writeProblem(w, r, apperr.Client(apperr.CodeValidationError, "malformed JSON body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		detail := "request body validation failed"
		if errors.As(err, &verrs) && len(verrs) > 0 {
			detail = "invalid field: " + strings.ToLower(verrs[0].Field())
		}
		s.writeProblem(w, r, apperr.Client(apperr.CodeValidationError, detail))
		return
	}

	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	second := ""
	if req.SecondName != nil {
		second = strings.TrimSpace(*req.SecondName)
	}
	fio := last + " " + first
	if second != "" {
		fio += " " + second
	}

	requestID := req.RequestID
	result, err := s.runner.Execute(r.Context(), pipeline.Request{
		DeclaredFIO:       fio,
		ExternalRequestID: &requestID,
		IIN:               string(req.IIN),
		FirstName:         first,
		LastName:          last,
		SecondName:        second,
		Source:            pipeline.Source{S3Key: req.S3Path},
	})
	if err != nil {
		s.writeProblem(w, r, apperr.From(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// spoolUpload writes the multipart part to a temp file the pipeline can read.
func spoolUpload(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	log.Debug().Str("file", tmp.Name()).Msg("spooled upload")
	return tmp.Name(), nil
}

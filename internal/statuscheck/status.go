package statuscheck

import (
	"context"
	"errors"
	"time"
)

// Pinger is the minimal capability a dependency must expose for the probe.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a bare function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// BreakerStates reports circuit-breaker states by service name.
type BreakerStates interface {
	States() map[string]string
}

// Checker aggregates health checks for every external dependency.
type Checker struct {
	s3       Pinger
	db       Pinger
	ocr      Pinger
	llm      Pinger
	breakers BreakerStates
	timeout  time.Duration
}

// Options configures the Checker. Nil dependencies report as unavailable.
type Options struct {
	S3       Pinger
	DB       Pinger
	OCR      Pinger
	LLM      Pinger
	Breakers BreakerStates
	Timeout  time.Duration
}

// Status represents the readiness of one subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses for the health endpoint.
type Summary struct {
	OK       bool              `json:"ok"`
	S3       Status            `json:"s3"`
	Database Status            `json:"database"`
	OCR      Status            `json:"ocr"`
	LLM      Status            `json:"llm"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

func New(opts Options) *Checker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		s3:       opts.S3,
		db:       opts.DB,
		ocr:      opts.OCR,
		llm:      opts.LLM,
		breakers: opts.Breakers,
		timeout:  timeout,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		S3:       c.probe(ctx, c.s3),
		Database: c.probe(ctx, c.db),
		OCR:      c.probe(ctx, c.ocr),
		LLM:      c.probe(ctx, c.llm),
	}
	if c.breakers != nil {
		s.Breakers = c.breakers.States()
	}
	s.OK = s.S3.OK && s.Database.OK && s.OCR.OK && s.LLM.OK
	return s
}

func (c *Checker) probe(ctx context.Context, p Pinger) Status {
	if p == nil {
		return Status{OK: false, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := p.HealthCheck(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}

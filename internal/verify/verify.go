package verify

import (
	"strings"
	"time"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/fio"
	"github.com/local/docverify/internal/validity"
)

// Record is the merged output of both LLM calls plus the optional stamp flag.
// Nil pointers mean the model returned null or omitted the field.
type Record struct {
	DocType            *string
	SingleDocTypeValid bool
	FIO                *string
	DocDate            *string
	Organization       *string
	StampFound         *bool
}

// Checks holds the per-rule booleans persisted with every run.
type Checks struct {
	FIOMatch       bool
	DocTypeKnown   bool
	SingleDocType  bool
	DocDatePresent bool
	DocDateValid   bool
}

// Result is the business outcome of a run. The checker never returns a Go
// error; every outcome is encoded here.
type Result struct {
	Verdict bool
	Checks  Checks
	Errors  []string
}

// Checker evaluates the business rules against a merged record.
type Checker struct {
	registry config.DocTypeRegistry
	eval     *validity.Evaluator
}

func NewChecker(registry config.DocTypeRegistry, eval *validity.Evaluator) *Checker {
	return &Checker{registry: registry, eval: eval}
}

// Check runs every rule and returns the verdict with error codes in rule
// order: FIO, doc type, single doc type, date presence, date validity.
// Duplicate codes are collapsed.
func (c *Checker) Check(declaredFIO string, rec Record) Result {
	var res Result

	declared := strings.TrimSpace(declaredFIO)
	extracted := ""
	if rec.FIO != nil {
		extracted = strings.TrimSpace(*rec.FIO)
	}
	switch {
	case declared == "":
		res.addError(apperr.CodeFIOMissing)
	case extracted == "":
		// nothing to compare against: the match cannot succeed
		res.addError(apperr.CodeFIOMismatch)
	case fio.Match(declared, extracted):
		res.Checks.FIOMatch = true
	default:
		res.addError(apperr.CodeFIOMismatch)
	}

	if rec.DocType != nil && c.registry.Known(*rec.DocType) {
		res.Checks.DocTypeKnown = true
	} else {
		res.addError(apperr.CodeDocTypeUnknown)
	}

	if rec.SingleDocTypeValid {
		res.Checks.SingleDocType = true
	} else {
		res.addError(apperr.CodeMultipleDocTypes)
	}

	docDate, dateOK := parseDocDate(rec.DocDate)
	if dateOK {
		res.Checks.DocDatePresent = true
	} else {
		res.addError(apperr.CodeDocDateMissing)
	}

	if dateOK {
		docType := ""
		if rec.DocType != nil {
			docType = *rec.DocType
		}
		if c.eval.Valid(docType, docDate) {
			res.Checks.DocDateValid = true
		} else {
			res.addError(apperr.CodeDocDateTooOld)
		}
	}

	res.Verdict = len(res.Errors) == 0
	return res
}

func parseDocDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	return validity.ParseDate(*s)
}

func (r *Result) addError(code string) {
	for _, c := range r.Errors {
		if c == code {
			return
		}
	}
	r.Errors = append(r.Errors, code)
}

package validity

import (
	"strconv"
	"strings"
	"time"

	"github.com/local/docverify/internal/config"
)

// Server-local date for validity checks is taken at UTC+5 regardless of the
// host timezone.
var zone = time.FixedZone("UTC+5", 5*60*60)

var layouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
}

// Genitive month names as they appear in Russian document dates.
var ruMonths = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
}

// ParseDate parses a document date in any accepted format: YYYY-MM-DD,
// DD.MM.YYYY, DD/MM/YYYY, or a Russian textual-month form like
// «2 января 2006 г.». Unparseable input reports false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return parseRussian(s)
}

func parseRussian(s string) (time.Time, bool) {
	s = strings.ToLower(s)
	s = strings.TrimSuffix(s, "года")
	s = strings.TrimSuffix(s, "г.")
	s = strings.TrimSuffix(s, "г")
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 3 {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := ruMonths[fields[1]]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil || year < 1900 || year > 2200 {
		return time.Time{}, false
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 31 -> Mar 3); reject such input
	if t.Day() != day || t.Month() != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

// Evaluator computes per-doc-type validity windows against the current date.
type Evaluator struct {
	registry config.DocTypeRegistry
	now      func() time.Time
}

func NewEvaluator(registry config.DocTypeRegistry) *Evaluator {
	return &Evaluator{registry: registry, now: time.Now}
}

// WithNow overrides the clock. Tests only.
func (e *Evaluator) WithNow(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Window returns the validity interval [docDate, docDate + N days] for the
// given doc type.
func (e *Evaluator) Window(docType string, docDate time.Time) (time.Time, time.Time) {
	days := e.registry.ValidityDays(docType)
	return docDate, docDate.AddDate(0, 0, days)
}

// Valid reports whether the document is still current: today (server date at
// UTC+5) is on or before the end of the validity window. Comparison is at
// date granularity.
func (e *Evaluator) Valid(docType string, docDate time.Time) bool {
	_, end := e.Window(docType, docDate)
	today := dateOnly(e.now().In(zone))
	return !today.After(dateOnly(end))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package fio

import (
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/unicode/norm"
)

// matchThreshold is the minimum partial-ratio score for two name tokens to
// count as the same token.
const matchThreshold = 85

// Kazakh letters folded to their nearest Russian counterparts, so names
// written in Kazakh orthography compare against the Russian declaration.
var kzToRu = map[rune]rune{
	'ә': 'а', 'ғ': 'г', 'қ': 'к', 'ң': 'н', 'ө': 'о',
	'ұ': 'у', 'ү': 'у', 'һ': 'х', 'і': 'и',
}

// GOST-style transliteration for names OCR'd in Latin script.
var ruToLat = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f",
	'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y",
	'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// Match reports whether the declared applicant name and the name extracted
// from the document refer to the same person. The check is symmetric: every
// token on each side must find a distinct counterpart on the other.
func Match(declared, extracted string) bool {
	d := strings.Fields(Normalize(declared))
	e := strings.Fields(Normalize(extracted))
	if len(d) == 0 || len(e) == 0 {
		return false
	}
	return covers(d, e) && covers(e, d)
}

// Normalize lowercases, folds ё, strips Latin diacritics and punctuation,
// and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		r = foldLatinAccent(r)
		switch {
		case r == 'ё':
			b.WriteRune('е')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// covers checks that every token in need scores at least matchThreshold
// against some not-yet-claimed token in have.
func covers(need, have []string) bool {
	used := make([]bool, len(have))
	for _, n := range need {
		best := -1
		bestScore := 0
		for j, h := range have {
			if used[j] {
				continue
			}
			if s := tokenScore(n, h); s > bestScore {
				bestScore = s
				best = j
			}
		}
		if best < 0 || bestScore < matchThreshold {
			return false
		}
		used[best] = true
	}
	return true
}

// tokenScore takes the best partial-ratio across all script variants of both
// tokens, so a Kazakh-spelled token still matches its Russian or Latin form.
func tokenScore(a, b string) int {
	max := 0
	for _, va := range variants(a) {
		for _, vb := range variants(b) {
			if s := fuzzy.PartialRatio(va, vb); s > max {
				max = s
			}
		}
	}
	return max
}

// variants returns the token itself, its Russian fold, and its Latin
// transliteration, deduplicated.
func variants(tok string) []string {
	out := []string{tok}
	ru := kzFold(tok)
	if ru != tok {
		out = append(out, ru)
	}
	if lat := translit(ru); lat != ru && lat != tok {
		out = append(out, lat)
	}
	return out
}

func kzFold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ru, ok := kzToRu[r]; ok {
			r = ru
		}
		b.WriteRune(r)
	}
	return b.String()
}

func translit(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if lat, ok := ruToLat[r]; ok {
			b.WriteString(lat)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// foldLatinAccent strips combining marks from accented Latin letters only.
// Cyrillic stays untouched: й and ё are letters, not accents.
func foldLatinAccent(r rune) rune {
	if r < 0x00C0 || r > 0x024F {
		return r
	}
	d := []rune(norm.NFD.String(string(r)))
	if len(d) == 0 {
		return r
	}
	if base := d[0]; (base >= 'a' && base <= 'z') || (base >= 'A' && base <= 'Z') {
		return base
	}
	return r
}

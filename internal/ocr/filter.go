package ocr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Page is one recognized page.
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Pages is the normalized OCR output handed to the prompts.
type Pages struct {
	Pages []Page `json:"pages"`
}

// JSON renders the normalized output for artifacts and prompt injection.
func (p Pages) JSON() string {
	b, _ := json.Marshal(p)
	return string(b)
}

var pageNumberKeys = []string{"page_number", "page", "page_num", "number"}
var pageTextKeys = []string{"text", "markdown", "content"}

// FilterPages walks a raw OCR response of any shape, collects page objects,
// drops blank pages, merges duplicate page numbers by concatenation in
// document order and returns pages sorted by page number.
func FilterPages(raw []byte) (Pages, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Pages{}, fmt.Errorf("parse OCR response: %w", err)
	}

	var found []Page
	walk(doc, &found)

	merged := make([]Page, 0, len(found))
	index := make(map[int]int, len(found))
	for _, p := range found {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if at, ok := index[p.PageNumber]; ok {
			merged[at].Text = merged[at].Text + "\n" + text
			continue
		}
		index[p.PageNumber] = len(merged)
		merged = append(merged, Page{PageNumber: p.PageNumber, Text: text})
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].PageNumber < merged[j].PageNumber })
	return Pages{Pages: merged}, nil
}

// walk visits maps in sorted-key order and slices in natural order so
// duplicate merging sees a stable document order.
func walk(node any, out *[]Page) {
	switch v := node.(type) {
	case map[string]any:
		if p, ok := asPage(v); ok {
			*out = append(*out, p)
			return
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], out)
		}
	case []any:
		for _, item := range v {
			walk(item, out)
		}
	}
}

func asPage(m map[string]any) (Page, bool) {
	num, okNum := -1, false
	for _, k := range pageNumberKeys {
		if raw, ok := m[k]; ok {
			if n, ok := asInt(raw); ok {
				num, okNum = n, true
				break
			}
		}
	}
	if !okNum {
		return Page{}, false
	}
	for _, k := range pageTextKeys {
		if raw, ok := m[k]; ok {
			if s, ok := raw.(string); ok {
				return Page{PageNumber: num, Text: s}, true
			}
		}
	}
	return Page{}, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	case int:
		return n, true
	}
	return 0, false
}

package llm

import (
	"encoding/json"
	"strings"

	"github.com/local/docverify/internal/apperr"
)

// ExtractJSON pulls the first JSON document out of a completion payload,
// unwrapping chat envelopes and markdown code fences. Feeding its own output
// back in returns the same document.
func ExtractJSON(raw []byte) ([]byte, error) {
	candidates := make([]string, 0, 2)
	if inner, ok := unwrapEnvelope(raw); ok {
		candidates = append(candidates, inner)
	}
	candidates = append(candidates, string(raw))

	for _, cand := range candidates {
		if fenced := stripFences(cand); fenced != cand {
			if doc, ok := firstJSON(fenced); ok {
				return []byte(doc), nil
			}
		}
		if doc, ok := firstJSON(cand); ok {
			return []byte(doc), nil
		}
	}
	return nil, apperr.Server(apperr.CodeLLMFilterParseError, "no JSON document in completion", false)
}

// unwrapEnvelope extracts the assistant text from known envelope shapes:
// choices[0].message.content, choices[0].text, then a root content field.
// Objects carrying a Model key are request echoes, not envelopes.
func unwrapEnvelope(raw []byte) (string, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return "", false
	}
	if _, echo := keys["Model"]; echo {
		return "", false
	}

	var env struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false
	}
	if len(env.Choices) > 0 {
		if s := env.Choices[0].Message.Content; strings.TrimSpace(s) != "" {
			return s, true
		}
		if s := env.Choices[0].Text; strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	if strings.TrimSpace(env.Content) != "" {
		return env.Content, true
	}
	return "", false
}

// stripFences returns the body of the first ``` fence pair, dropping an
// optional language tag on the opening line.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(rest[:nl]); !strings.ContainsAny(tag, "{[") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return rest
}

// firstJSON finds the first balanced JSON object or array in s, skipping
// prompt echoes (objects with both Model and Content keys).
func firstJSON(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		end, ok := balancedEnd(s, i)
		if !ok {
			continue
		}
		seg := s[i : end+1]
		if !json.Valid([]byte(seg)) {
			continue
		}
		if isPromptEcho(seg) {
			i = end
			continue
		}
		return seg, true
	}
	return "", false
}

// balancedEnd scans from an opening bracket to its matching close, honoring
// string literals and escapes.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func isPromptEcho(seg string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(seg), &m); err != nil {
		return false
	}
	_, hasModel := m["Model"]
	_, hasContent := m["Content"]
	return hasModel && hasContent
}

package extraction

import (
	"encoding/json"
	"strings"
)

// ParseModelResponse turns a raw completion response into a document. Models
// wrap JSON in prose or code fences often enough that plain unmarshal is the
// fast path, not the only path:
//  1. direct unmarshal
//  2. largest brace-delimited substring
//  3. key: value line scan
//  4. wrap the raw text as {text: raw}
func ParseModelResponse(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}
	}

	if doc := tryUnmarshal(raw); doc != nil {
		return doc
	}

	if candidate := largestBraceSubstring(raw); candidate != "" {
		if doc := tryUnmarshal(candidate); doc != nil {
			return doc
		}
	}

	if doc := scanKeyValueLines(raw); len(doc) > 0 {
		return doc
	}

	return map[string]interface{}{"text": raw}
}

func tryUnmarshal(s string) map[string]interface{} {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil
	}
	return doc
}

// largestBraceSubstring finds the longest balanced {...} span in the text,
// skipping braces inside JSON strings
func largestBraceSubstring(s string) string {
	best := ""
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := s[start : i+1]
					if len(candidate) > len(best) {
						best = candidate
					}
				}
			}
		}
	}
	return best
}

// scanKeyValueLines recovers flat "key: value" pairs from degenerate output
func scanKeyValueLines(s string) map[string]interface{} {
	doc := make(map[string]interface{})
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "-*• \t"))
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(strings.Trim(line[:idx], `"'`))
		value := strings.TrimSpace(strings.Trim(line[idx+1:], `"',`))
		if key == "" || value == "" || strings.ContainsAny(key, "{}[]") {
			continue
		}
		doc[key] = value
	}
	return doc
}

// Package modeljson decodes JSON payloads out of LLM completion text.
//
// Models asked for JSON output routinely wrap it in a markdown code fence or
// pad it with prose, so a plain json.Unmarshal on the raw completion fails.
// Unmarshal strips those wrappers first.
package modeljson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Unmarshal decodes the JSON document embedded in an LLM completion into v.
// It tolerates ```json fences, bare ``` fences, and leading or trailing prose
// around the outermost JSON value.
func Unmarshal(completion string, v any) error {
	cleaned := Strip(completion)
	if cleaned == "" {
		return fmt.Errorf("modeljson: no JSON content in completion")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("modeljson: decode: %w", err)
	}
	return nil
}

// Strip returns the JSON document embedded in completion, without decoding
// it. Returns "" when no candidate document is found.
func Strip(completion string) string {
	s := strings.TrimSpace(completion)

	// Prefer the fenced block when present.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		// Skip a language tag like "json" up to the first newline.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			tag := strings.TrimSpace(rest[:nl])
			if tag == "" || isLanguageTag(tag) {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	// Trim prose around the outermost object or array.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var closer byte
	if s[start] == '{' {
		closer = '}'
	} else {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

// isLanguageTag reports whether tag looks like a fence language marker rather
// than content.
func isLanguageTag(tag string) bool {
	if len(tag) > 10 {
		return false
	}
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

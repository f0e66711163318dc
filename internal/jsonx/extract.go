package jsonx

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// ExtractObject locates the first JSON object in text and unmarshals it into
// v. LLM responses wrap objects in prose or markdown fences, so the ladder is
// strict unmarshal first, then jsonrepair, then failure with BadResponse.
// Responses used as control signals must go through this; arbitrary prose is
// never accepted.
func ExtractObject(text string, v any) error {
	candidate := firstObject(text)
	if candidate == "" {
		return nerrors.BadResponse("jsonx.extract", "no JSON object in response")
	}
	if err := Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nerrors.BadResponse("jsonx.extract", "unparseable JSON object")
	}
	if err := Unmarshal([]byte(repaired), v); err != nil {
		return nerrors.BadResponse("jsonx.extract", "unparseable JSON object after repair")
	}
	return nil
}

// firstObject returns the first balanced {...} run in text, honoring strings
// and escapes. Returns "" when no complete object exists.
func firstObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	// Unterminated object: hand the tail to the repair layer.
	return text[start:]
}

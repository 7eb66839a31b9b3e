package core

import (
	"encoding/json"
	"strings"

	"github.com/digitallysavvy/go-ai/pkg/internal/jsonutil"
)

// LocateJSONObject scans text for the first balanced-brace region that
// parses (directly, or after jsonutil.FixJSON repair) as a JSON object, and
// returns the decoded object, the substring it was found in, and whether a
// region was found at all. It tolerates surrounding junk before and after
// the braces — the Hermes protocol's tag bodies and the generate
// extractor's JSON-recovery fallback both rely on this tolerance.
func LocateJSONObject(text string) (obj map[string]interface{}, region string, ok bool) {
	for start := strings.IndexByte(text, '{'); start != -1; start = nextByte(text, start+1, '{') {
		end := matchingBrace(text, start)
		if end == -1 {
			continue
		}
		candidate := text[start : end+1]
		if decoded, ok := decodeJSONObject(candidate); ok {
			return decoded, candidate, true
		}
	}
	return nil, "", false
}

func decodeJSONObject(candidate string) (map[string]interface{}, bool) {
	var value interface{}
	if err := json.Unmarshal([]byte(candidate), &value); err == nil {
		if obj, ok := value.(map[string]interface{}); ok {
			return obj, true
		}
		return nil, false
	}
	fixed, err := jsonutil.FixJSON(candidate)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(fixed), &value); err == nil {
		if obj, ok := value.(map[string]interface{}); ok {
			return obj, true
		}
	}
	return nil, false
}

// matchingBrace returns the index of the brace matching the '{' at start,
// tracking string literals so braces inside quoted values don't confuse the
// scan. Returns -1 if no matching brace is found before the text ends.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func nextByte(s string, from int, b byte) int {
	if from >= len(s) {
		return -1
	}
	idx := strings.IndexByte(s[from:], b)
	if idx == -1 {
		return -1
	}
	return from + idx
}

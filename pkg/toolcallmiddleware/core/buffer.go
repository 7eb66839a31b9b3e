// Package core holds the primitive types and text-scanning utilities shared
// by every protocol and extractor in the tool-call middleware: the
// boundary-safe buffer scan, the ContentPart/Event/ToolCall sum types, the
// tolerant XML scaffold, and the JSON object locator. It has no dependency
// on the protocol/extractor/prompt/toolchoice packages, which all depend on
// it — that asymmetry is what keeps the middleware constructor package free
// to import all of them without a cycle.
package core

import "strings"

// EarliestIndex returns the smallest index in buf where needle could begin:
// either a complete match, or a proper non-empty suffix of buf that is a
// prefix of needle (and so could complete into a full match once more text
// arrives). Returns -1 if neither applies.
//
// This is the boundary-safe flush primitive: a streaming consumer can safely
// emit buf[:idx] and must retain buf[idx:] because it might still be the
// start of needle.
func EarliestIndex(buf, needle string) int {
	if needle == "" {
		return -1
	}
	if idx := strings.Index(buf, needle); idx != -1 {
		return idx
	}
	for i := len(buf) - 1; i >= 0; i-- {
		suffix := buf[i:]
		if strings.HasPrefix(needle, suffix) {
			return i
		}
	}
	return -1
}

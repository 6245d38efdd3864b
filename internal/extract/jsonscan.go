package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model responses routinely wrap JSON in prose or markdown code fences. The
// scanners below locate the first well-formed JSON value of the wanted kind
// instead of trusting the response to be bare JSON.

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// stripFences unwraps the first fenced block, if any.
func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ScanJSONArray returns the first well-formed JSON array found in s.
func ScanJSONArray(s string) (json.RawMessage, bool) {
	return scan(stripFences(s), '[')
}

// ScanJSONObject returns the first well-formed JSON object found in s.
func ScanJSONObject(s string) (json.RawMessage, bool) {
	return scan(stripFences(s), '{')
}

func scan(s string, open byte) (json.RawMessage, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != open {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return raw, true
		}
	}
	return nil, false
}

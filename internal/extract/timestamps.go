package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Timestamp is one topic boundary parsed from an overview response.
type Timestamp struct {
	Seconds float64
	Topic   string
}

// Lines like "02:15 - Pricing discussion" or "1:02:15 - Q&A".
var timestampRe = regexp.MustCompile(`(?m)^[\s*\-]*(?:(\d{1,2}):)?(\d{1,2}):(\d{2})\s*[-–—]\s*(.+)$`)

// ParseTimestamps pulls "MM:SS - topic" boundaries out of free text,
// returning them sorted and deduplicated by second.
func ParseTimestamps(s string) []Timestamp {
	matches := timestampRe.FindAllStringSubmatch(s, -1)
	seen := make(map[float64]bool)
	var out []Timestamp
	for _, m := range matches {
		hours := 0
		if m[1] != "" {
			hours, _ = strconv.Atoi(m[1])
		}
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		total := float64(hours*3600 + mins*60 + secs)
		if seen[total] {
			continue
		}
		seen[total] = true
		out = append(out, Timestamp{Seconds: total, Topic: strings.TrimSpace(m[4])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return out
}

// FormatTimestamp renders seconds as MM:SS (or H:MM:SS past the hour).
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return strconv.Itoa(h) + ":" + pad(m) + ":" + pad(s)
	}
	return pad(m) + ":" + pad(s)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

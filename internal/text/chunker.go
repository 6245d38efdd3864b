package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Piece is one bounded unit of segmented text.
type Piece struct {
	Content    string
	TokenCount int
}

// EstimateTokens approximates token count as len(s)/4 (bytes, not a real
// tokenizer). Downstream cost estimates depend on this ratio staying
// consistent, so every caller in the pipeline goes through this function.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		return 1
	}
	return n
}

var (
	paragraphRe = regexp.MustCompile(`\n{2,}`)
	sentenceRe  = regexp.MustCompile(`[^.!?\n]+[.!?]+["')\]]*\s*|[^.!?\n]+\n?`)
)

// Chunk splits text into pieces of at most maxTokens estimated tokens using
// greedy paragraph accumulation. When a piece closes, the next one is seeded
// with the last overlap tokens of trailing text so context survives the
// boundary. A paragraph that alone exceeds maxTokens is split at sentence
// boundaries and its sentences join the same accumulation.
func Chunk(text string, maxTokens, overlap int) []Piece {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var units []string
	for _, p := range splitParagraphs(text) {
		if EstimateTokens(p) <= maxTokens {
			units = append(units, p)
			continue
		}
		units = append(units, splitSentences(p)...)
	}

	return accumulate(units, maxTokens, overlap)
}

func accumulate(units []string, maxTokens, overlap int) []Piece {
	var pieces []Piece
	var cur string
	hasBody := false // whether cur holds anything beyond the overlap seed

	flush := func() {
		pieces = append(pieces, Piece{Content: cur, TokenCount: EstimateTokens(cur)})
		cur = Tail(cur, overlap)
		hasBody = false
	}

	for _, u := range units {
		if cur == "" {
			cur = u
			hasBody = true
			continue
		}

		// A piece holding only the seed always accepts the next unit,
		// otherwise an oversize unit would stall the loop.
		if hasBody && EstimateTokens(cur)+EstimateTokens(u) > maxTokens {
			flush()
		}

		if cur == "" {
			cur = u
		} else {
			cur = cur + "\n\n" + u
		}
		hasBody = true
	}

	if hasBody && strings.TrimSpace(cur) != "" {
		pieces = append(pieces, Piece{Content: cur, TokenCount: EstimateTokens(cur)})
	}

	return pieces
}

// Tail returns the last tokens worth of text, snapped forward to a rune
// boundary and then to a word boundary so the overlap never starts mid-rune
// or mid-word.
func Tail(s string, tokens int) string {
	if tokens <= 0 || s == "" {
		return ""
	}
	chars := tokens * 4
	if chars >= len(s) {
		return s
	}
	tail := s[len(s)-chars:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(p string) []string {
	matches := sentenceRe.FindAllString(p, -1)
	if len(matches) == 0 {
		return []string{p}
	}
	var out []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

package feedsync

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxContentLen is the content budget in runes.
const DefaultMaxContentLen = 800

const ellipsis = "..."

// Truncate shortens text to at most maxLen runes plus an ellipsis.
//
// It prefers the last sentence end (". ", "! ", "? " or the same followed by
// a newline) in the back half of the budget, then the last space in the final
// 30%, and hard-cuts otherwise. Text within budget is returned unchanged.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLen
	}
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	head := r[:maxLen]

	if i := lastSentenceEnd(head); i >= 0 && float64(i) >= float64(maxLen)*0.5 {
		return string(head[:i+1]) + ellipsis
	}
	if i := lastRune(head, ' '); i >= 0 && float64(i) >= float64(maxLen)*0.7 {
		return string(head[:i]) + ellipsis
	}
	return strings.TrimRightFunc(string(head), unicode.IsSpace) + ellipsis
}

func lastSentenceEnd(r []rune) int {
	for i := len(r) - 2; i >= 0; i-- {
		switch r[i] {
		case '.', '!', '?':
			if r[i+1] == ' ' || r[i+1] == '\n' {
				return i
			}
		}
	}
	return -1
}

func lastRune(r []rune, want rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == want {
			return i
		}
	}
	return -1
}

// NormalizeText composes text to NFC, folds CRLF, collapses runs of blank
// lines, trims it and applies Truncate.
func NormalizeText(text string, maxLen int) string {
	s := norm.NFC.String(text)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, ln := range lines {
		ln = strings.TrimRightFunc(ln, unicode.IsSpace)
		if ln == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, ln)
	}
	s = strings.TrimSpace(strings.Join(out, "\n"))
	if s == "" {
		return ""
	}
	return Truncate(s, maxLen)
}

package browser

import (
	"regexp"
	"strings"
)

var (
	carriageReturns = regexp.MustCompile(`\r\n?`)
	blankLineRuns   = regexp.MustCompile(`\n{3,}`)

	// horizontal whitespace only; paragraph breaks survive
	spaceRuns = regexp.MustCompile(`[^\S\n]{2,}`)
)

// Normalize cleans extracted answer text. Line endings become "\n", runs
// of three or more newlines collapse to a blank line, runs of horizontal
// whitespace collapse to one space, and the ends are trimmed.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(text string) string {
	text = carriageReturns.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return text
}

// Package textnorm turns raw extracted or recognized page text into
// clean reading text. Normalize is pure and total: blank input yields
// an empty string, and normalizing already-normalized text is a no-op.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	reCRLF = regexp.MustCompile(`\r\n?`)
	reTabs = regexp.MustCompile(`\t+`)

	// pdftotext separates pages with form feeds; a page boundary reads
	// as a paragraph break.
	reFormFeed = regexp.MustCompile(`[ \t]*\f[ \t\f]*`)

	// A word split by an end-of-line hyphen: letter, hyphen, line break,
	// letter. \p{L} keeps this alphabet-aware (Cyrillic splits too).
	reHyphenWrap = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{L})`)

	// Two or more newlines separate paragraphs; exactly one is an
	// in-paragraph wrap.
	reParaBreak  = regexp.MustCompile(`[ \t]*\n(?:[ \t]*\n)+[ \t]*`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
)

// paraMark stands in for paragraph breaks while single newlines are
// being collapsed. NUL cannot appear in text that came through the
// extraction pipeline.
const paraMark = "\x00"

// Normalize repairs hyphenation, collapses wrap newlines into spaces
// while preserving paragraph breaks, and squeezes whitespace.
func Normalize(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reFormFeed.ReplaceAllString(s, "\n\n")

	// Rejoin words the line wrap split. Must run before newline
	// collapsing or the hyphen context is lost.
	s = reHyphenWrap.ReplaceAllString(s, "$1$2")

	s = reParaBreak.ReplaceAllString(s, paraMark)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, paraMark, "\n\n")

	s = reMultiSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

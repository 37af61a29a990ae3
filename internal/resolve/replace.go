package resolve

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/roach88/bundlecore/internal/sourcemap"
)

// Correction records one length-changing substitution. Line is 1-based;
// Column is 0-based and measured in the original text. Column, Length and
// Delta count UTF-16 code units, the unit source map columns use.
type Correction struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Length int `json:"length"`
	Delta  int `json:"delta"`
}

// PerformReplacement replaces every occurrence of a key of replacements
// in text with its value in one left-to-right pass. Where keys overlap the
// longest one wins. Replacement values are never rescanned.
//
// It returns the rewritten text and the corrections, in text order, for
// every replacement whose length differs from its token.
func PerformReplacement(replacements map[string]string, text string) (string, []Correction) {
	tokens := make([]string, 0, len(replacements))
	for k := range replacements {
		if k != "" {
			tokens = append(tokens, k)
		}
	}
	if len(tokens) == 0 {
		return text, nil
	}
	// Longest first: Go's alternation is leftmost-first, so a token that
	// prefixes another must come after it.
	slices.SortFunc(tokens, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	var pattern strings.Builder
	pattern.WriteString(`\n`)
	for _, tok := range tokens {
		pattern.WriteByte('|')
		pattern.WriteString(regexp.QuoteMeta(tok))
	}
	re := regexp.MustCompile(pattern.String())

	var (
		out         strings.Builder
		corrections []Correction
		line        = 1
		last        int

		// Column bookkeeping: col is the UTF-16 column of byte offset
		// colAt on the current line.
		colAt int
		col   int
	)
	out.Grow(len(text))

	for _, loc := range re.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		match := text[start:end]
		out.WriteString(text[last:start])
		last = end

		if match == "\n" {
			line++
			colAt, col = end, 0
			out.WriteByte('\n')
			continue
		}

		rep, ok := replacements[match]
		if !ok {
			out.WriteString(match)
			continue
		}

		col += utf16Len(text[colAt:start])
		colAt = start

		tokLen, repLen := utf16Len(match), utf16Len(rep)
		if repLen != tokLen {
			corrections = append(corrections, Correction{
				Line:   line,
				Column: col,
				Length: tokLen,
				Delta:  repLen - tokLen,
			})
		}
		out.WriteString(rep)
	}
	out.WriteString(text[last:])
	return out.String(), corrections
}

// ApplyCorrections shifts the generated columns of m to account for the
// substitutions described by corrections. Corrections must be in the
// order PerformReplacement returned them.
//
// Only columns move. A replacement containing newlines shifts every later
// generated line, which is not corrected.
func ApplyCorrections(m *sourcemap.Map, corrections []Correction) {
	shift := make(map[int]int)
	for _, c := range corrections {
		// Earlier substitutions on the line already moved this token.
		prior := shift[c.Line]
		m.OffsetColumns(c.Line, c.Column+prior+c.Length, c.Delta)
		shift[c.Line] = prior + c.Delta
	}
}

func utf16Len(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

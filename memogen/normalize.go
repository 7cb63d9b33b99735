// ABOUTME: Text shaping for generated sections: paragraph splitting and value normalization.
// ABOUTME: Currency codes become display symbols so exported memos read like analyst prose.
package memogen

import (
	"regexp"
	"strings"
)

// SplitParagraphs splits text on blank-line boundaries, trims each piece
// and drops empties. One non-empty block with no boundary yields a single
// paragraph.
func SplitParagraphs(text string) []string {
	parts := blankLine.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

var blankLine = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// currencySymbols maps ISO currency codes to the display symbols used in
// finished memos.
var currencySymbols = map[string]string{
	"BRL": "R$",
	"USD": "US$",
	"EUR": "€",
	"GBP": "£",
	"MXN": "MX$",
	"CLP": "CLP$",
	"COP": "COL$",
	"ARS": "AR$",
}

var currencyCode = regexp.MustCompile(`\b(BRL|USD|EUR|GBP|MXN|CLP|COP|ARS)\s*(\d)`)

var repeatedSpace = regexp.MustCompile(`[ \t]{2,}`)

// NormalizeValues rewrites monetary code prefixes to their display symbols
// and collapses repeated horizontal whitespace.
func NormalizeValues(text string) string {
	out := currencyCode.ReplaceAllStringFunc(text, func(m string) string {
		sub := currencyCode.FindStringSubmatch(m)
		return currencySymbols[sub[1]] + " " + sub[2]
	})
	out = strings.ReplaceAll(out, " ", " ")
	out = repeatedSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

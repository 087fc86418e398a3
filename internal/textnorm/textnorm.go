// Package textnorm cleans raw text scraped from menu pages: whitespace,
// nutrition values, portion weights and panel labels.
//
// All functions are pure and never fail; unusable input yields "".
package textnorm

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	// invisible characters that survive markup extraction.
	invisible = strings.NewReplacer(
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\u2060", "",
		"\ufeff", "",
		"\u00ad", "",
	)

	reDigitLetter = regexp.MustCompile(`(\d)(\p{L})`)
	rePortion     = regexp.MustCompile(`(?i)(\d+)\s*(гр|г|gr|g)(?:[^\p{L}]|$)`)
)

// portionUnits maps the matched weight unit to its canonical spelling.
var portionUnits = map[string]string{
	"г":  "г",
	"гр": "г",
	"g":  "g",
	"gr": "g",
}

// CleanText collapses every whitespace run (including non-breaking and other
// Unicode spaces) to a single ASCII space and trims both ends. Stray HTML
// entities are decoded and zero-width characters dropped first.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	s := html.UnescapeString(raw)
	s = invisible.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// CleanNutritionValue normalises a nutrition cell such as "12г (15%)".
//
// The steps run in a fixed order:
//  1. truncate at the first "(" (percentage annotations)
//  2. truncate at the first "/" (duplicate unit annotations)
//  3. separate a digit from an immediately following letter ("12г" -> "12 г")
func CleanNutritionValue(raw string) string {
	s := raw
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = reDigitLetter.ReplaceAllString(s, "$1 $2")
	return CleanText(s)
}

// CleanPortion extracts a "<digits> <unit>" weight from raw, e.g.
// "250 г | 1 шт" -> "250 г". It returns "" when no weight is present.
func CleanPortion(raw string) string {
	m := rePortion.FindStringSubmatch(CleanText(raw))
	if m == nil {
		return ""
	}
	unit := portionUnits[strings.ToLower(m[2])]
	if unit == "" {
		unit = strings.ToLower(m[2])
	}
	return m[1] + " " + unit
}

// CanonicalLabel prepares a nutrition panel label for dictionary lookup:
// compatibility-normalised, lower-cased, whitespace-collapsed, with any
// trailing colon removed.
func CanonicalLabel(raw string) string {
	s := norm.NFKC.String(raw)
	s = CleanText(s)
	// cases.Caser is stateful; build one per call.
	s = cases.Lower(language.Und).String(s)
	s = strings.TrimRight(s, ": ")
	return strings.TrimSpace(s)
}

// FirstToken returns the first whitespace-delimited token of label without
// trailing punctuation ("жири, г" -> "жири").
func FirstToken(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], ",;:.")
}

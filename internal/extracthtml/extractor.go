package extracthtml

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"menuscrape/internal/textnorm"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses content into a goquery document.
func ParseHTML(content string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Resolve evaluates chain against root in order and returns the first
// non-empty cleaned value, or "" when the chain is exhausted.
//
// A locator that fails (bad pattern, unknown kind, or a panic inside the
// selector engine) is skipped and the next one is tried.
func Resolve(root *goquery.Selection, chain LocatorChain) string {
	v, _ := ResolveTrace(root, chain)
	return v
}

// ResolveFunc is Resolve with a per-locator transform: a locator only wins
// when accept turns its cleaned value into a non-empty string, which is
// returned. Used where the first matching text is not necessarily usable
// (a portion chain must yield a weight, not any text).
func ResolveFunc(root *goquery.Selection, chain LocatorChain, accept func(string) string) string {
	if root == nil || root.Length() == 0 {
		return ""
	}
	for _, loc := range chain {
		v, err := evaluateIsolated(root, loc)
		if err != nil {
			continue
		}
		if v = accept(textnorm.CleanText(v)); v != "" {
			return v
		}
	}
	return ""
}

// ResolveTrace is Resolve that also reports the index of the winning locator
// (-1 when nothing resolved). Used for debug output.
func ResolveTrace(root *goquery.Selection, chain LocatorChain) (string, int) {
	if root == nil || root.Length() == 0 {
		return "", -1
	}
	for i, loc := range chain {
		v, err := evaluateIsolated(root, loc)
		if err != nil {
			continue
		}
		if v = textnorm.CleanText(v); v != "" {
			return v, i
		}
	}
	return "", -1
}

// evaluateIsolated runs one locator and converts a panic into an error so a
// single broken locator cannot take down the chain.
func evaluateIsolated(root *goquery.Selection, loc Locator) (v string, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = "", fmt.Errorf("locator %s %q panicked: %v", loc.Kind, loc.Selector, r)
		}
	}()
	return loc.Evaluate(root)
}

// Evaluate is the single dispatch point for every locator kind.
//
// It returns the raw (uncleaned) value of the first match that is non-empty
// after trimming, or "" when nothing matched.
func (l Locator) Evaluate(root *goquery.Selection) (string, error) {
	switch l.Kind {
	case ByStructure:
		var out string
		scope(root, l.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = strings.TrimSpace(VisibleText(s))
			return out == ""
		})
		return out, nil

	case ByAttribute:
		if l.Attr == "" {
			return "", fmt.Errorf("attribute locator %q: missing attr", l.Selector)
		}
		var out string
		scope(root, l.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr(l.Attr); ok {
				out = strings.TrimSpace(v)
			}
			return out == ""
		})
		return out, nil

	case ByTextPattern:
		re, err := compilePattern(l.Pattern)
		if err != nil {
			return "", err
		}
		return applyPattern(textnorm.CleanText(VisibleText(root)), re), nil

	default:
		return "", fmt.Errorf("unknown locator kind %q", l.Kind)
	}
}

// scope returns root itself for an empty selector, otherwise root.Find(selector).
func scope(root *goquery.Selection, selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return root
	}
	return root.Find(selector)
}

// TextOf returns the cleaned visible text of the first element in sel.
// A nil or empty selection yields "".
func TextOf(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return textnorm.CleanText(VisibleText(sel.First()))
}

// CollectPairs reads label/value pairs from every row matched by spec.Rows
// below root. Rows with an empty label are dropped; empty values are kept so
// callers can see that a label was present.
func CollectPairs(root *goquery.Selection, spec PairSpec) []Pair {
	if root == nil || strings.TrimSpace(spec.Rows) == "" {
		return nil
	}

	var pairs []Pair
	root.Find(spec.Rows).Each(func(_ int, row *goquery.Selection) {
		label := TextOf(scope(row, spec.Label))

		var value string
		if strings.TrimSpace(spec.Value) == "" {
			value = TextOf(row.Next())
		} else {
			value = TextOf(row.Find(spec.Value))
		}

		if label == "" {
			return
		}
		pairs = append(pairs, Pair{Label: label, Value: value})
	})
	return pairs
}

// FirstMatching returns the selection of the first selector in selectors that
// matches at least one element below root, along with its index. It returns
// an empty selection and -1 when none match.
func FirstMatching(root *goquery.Selection, selectors []string) (*goquery.Selection, int) {
	for i, s := range selectors {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if sel := root.Find(s); sel.Length() > 0 {
			return sel, i
		}
	}
	return root.Slice(0, 0), -1
}

// Contains reports whether content has at least one element matching selector.
func Contains(content, selector string) (bool, error) {
	doc, err := ParseHTML(content)
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

var patternCache sync.Map // pattern string -> *regexp.Regexp

// compilePattern compiles and caches a text-pattern regular expression.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("pattern locator: empty pattern")
	}
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// applyPattern returns capture group 1 when re has groups, the whole match
// otherwise, and "" when re does not match.
func applyPattern(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return ""
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}

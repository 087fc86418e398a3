package extracthtml

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/html"
)

// linkNormalization canonicalises discovered links so the same product page
// reached through different spellings is fetched once.
const linkNormalization = purell.FlagsSafe | purell.FlagRemoveFragment | purell.FlagRemoveDotSegments

// DiscoverLinks returns the absolute URLs of anchors in htmlBody selected by
// rule, resolved against baseURL.
//
// Only http(s) links on the base host are kept. Links are normalised
// (lower-case host, default port and fragment dropped) and duplicates are
// removed keeping document order. An invalid base URL, an
// invalid href pattern or an empty rule yields nil.
func DiscoverLinks(htmlBody, baseURL string, rule LinkRule) []string {
	base, ok := parseBaseURL(baseURL)
	if !ok {
		return nil
	}
	baseHost := normalizedHost(base)
	if rule.Class == "" && rule.HrefPattern == "" {
		return nil
	}
	var hrefRe *regexp.Regexp
	if rule.HrefPattern != "" {
		re, err := compilePattern(rule.HrefPattern)
		if err != nil {
			return nil
		}
		hrefRe = re
	}

	tok := html.NewTokenizer(strings.NewReader(htmlBody))
	seen := make(map[string]struct{})

	var out []string
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		t := tok.Token()
		if t.Data != "a" {
			continue
		}

		href, classAttr := anchorHrefAndClass(t)
		if href == "" {
			continue
		}
		if rule.Class != "" && !classListContains(classAttr, rule.Class) {
			continue
		}
		if hrefRe != nil && !hrefRe.MatchString(href) {
			continue
		}

		abs, ok := resolveAndFilterSameHost(base, baseHost, href)
		if !ok {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
}

// ResolveHref resolves href against baseURL. When baseURL is empty or
// unparsable the trimmed href is returned unchanged.
func ResolveHref(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

// parseBaseURL requires a non-empty host so same-host filtering is meaningful.
func parseBaseURL(baseURL string) (*url.URL, bool) {
	base, err := url.Parse(baseURL)
	if err != nil || base == nil || base.Host == "" {
		return nil, false
	}
	return base, true
}

func anchorHrefAndClass(a html.Token) (href, class string) {
	for _, attr := range a.Attr {
		switch attr.Key {
		case "href":
			href = strings.TrimSpace(attr.Val)
		case "class":
			class = attr.Val
		}
	}
	return href, class
}

// classListContains checks whether classAttr (e.g. "a b  c") contains
// className as an exact token.
func classListContains(classAttr, className string) bool {
	if className == "" {
		return false
	}
	for _, c := range strings.Fields(classAttr) {
		if c == className {
			return true
		}
	}
	return false
}

// resolveAndFilterSameHost resolves href against base and keeps it only when
// it is an http(s) URL on baseHost (port included) after normalisation.
func resolveAndFilterSameHost(base *url.URL, baseHost, href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	normalized := purell.NormalizeURL(resolved, linkNormalization)
	if normalizedHost(resolved) != baseHost {
		return "", false
	}
	return normalized, true
}

// normalizedHost returns u's host as purell would spell it. u is not
// modified.
func normalizedHost(u *url.URL) string {
	c := *u
	purell.NormalizeURL(&c, purell.FlagLowercaseHost|purell.FlagRemoveDefaultPort)
	return c.Host
}

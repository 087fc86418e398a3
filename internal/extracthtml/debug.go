package extracthtml

import (
	"fmt"
	"io"

	"menuscrape/internal/textnorm"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector prints either outer HTML or cleaned text of matches for
// a selector. This is used by extract_html's "-selector" debug mode.
func DebugPrintSelector(w io.Writer, html, selector string, textOnly bool) error {
	doc, err := ParseHTML(html)
	if err != nil {
		return err
	}

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, textnorm.CleanText(VisibleText(s)))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			fmt.Fprintln(w, in)
			fmt.Fprintln(w)
			return
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
	return nil
}

// DebugResolve prints the outcome of every locator in chain against html,
// marking the one Resolve would pick.
func DebugResolve(w io.Writer, html, field string, chain LocatorChain) error {
	doc, err := ParseHTML(html)
	if err != nil {
		return err
	}
	root := doc.Selection

	_, winner := ResolveTrace(root, chain)
	fmt.Fprintf(w, "%s:\n", field)
	for i, loc := range chain {
		mark := " "
		if i == winner {
			mark = "*"
		}
		v, err := evaluateIsolated(root, loc)
		switch {
		case err != nil:
			fmt.Fprintf(w, " %s [%d] %s %s error: %v\n", mark, i, loc.Kind, describe(loc), err)
		default:
			fmt.Fprintf(w, " %s [%d] %s %s => %q\n", mark, i, loc.Kind, describe(loc), textnorm.CleanText(v))
		}
	}
	return nil
}

func describe(l Locator) string {
	switch l.Kind {
	case ByAttribute:
		return fmt.Sprintf("%q@%s", l.Selector, l.Attr)
	case ByTextPattern:
		return fmt.Sprintf("/%s/", l.Pattern)
	default:
		return fmt.Sprintf("%q", l.Selector)
	}
}

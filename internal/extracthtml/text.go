package extracthtml

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// VisibleText returns the text of every node in sel, skipping script-like
// elements and separating element boundaries with a space, so that
// "<h1>Big<br>Mac</h1>" reads as "Big Mac" rather than "BigMac".
//
// The result is not whitespace-collapsed; callers clean it.
func VisibleText(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	var buf bytes.Buffer
	for _, n := range sel.Nodes {
		visibleTextRecursive(n, &buf)
	}
	return buf.String()
}

func visibleTextRecursive(node *html.Node, buf *bytes.Buffer) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buf.WriteString(node.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch node.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
		buf.WriteByte(' ')
		defer buf.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		visibleTextRecursive(child, buf)
	}
}

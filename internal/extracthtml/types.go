package extracthtml

// LocatorKind tags the variant of a Locator.
type LocatorKind string

const (
	// ByStructure selects elements with a CSS selector and reads their text.
	ByStructure LocatorKind = "structure"
	// ByAttribute selects elements with a CSS selector and reads one attribute.
	ByAttribute LocatorKind = "attribute"
	// ByTextPattern applies a regular expression to the fragment's visible text.
	ByTextPattern LocatorKind = "pattern"
)

// Locator describes one place to look for a field inside a page or fragment.
type Locator struct {
	Kind     LocatorKind `json:"kind"`
	Selector string      `json:"selector,omitempty"` // structure/attribute; empty means the root itself
	Attr     string      `json:"attr,omitempty"`     // attribute
	Pattern  string      `json:"pattern,omitempty"`  // pattern; group 1 is used when present
}

// LocatorChain is an ordered fallback list; the first locator that yields
// non-empty cleaned text wins.
type LocatorChain []Locator

// Structure returns a ByStructure locator.
func Structure(selector string) Locator {
	return Locator{Kind: ByStructure, Selector: selector}
}

// Attribute returns a ByAttribute locator.
func Attribute(selector, attr string) Locator {
	return Locator{Kind: ByAttribute, Selector: selector, Attr: attr}
}

// TextPattern returns a ByTextPattern locator.
func TextPattern(pattern string) Locator {
	return Locator{Kind: ByTextPattern, Pattern: pattern}
}

// HasTextPattern reports whether any locator in the chain is a ByTextPattern.
func (c LocatorChain) HasTextPattern() bool {
	for _, l := range c {
		if l.Kind == ByTextPattern {
			return true
		}
	}
	return false
}

// PairSpec describes how to read label/value pairs from a page region.
//
// Each element matched by Rows yields one pair. Label and Value are evaluated
// relative to the row. An empty Label uses the row's own text; an empty Value
// uses the row's next element sibling (the <dt>/<dd> layout).
type PairSpec struct {
	Rows  string `json:"rows"`
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
}

// Pair is one label/value pair read from a page region.
type Pair struct {
	Label string
	Value string
}

// LinkRule selects product anchors on a listing page. An anchor must carry
// Class as an exact class token (when set) and its href must match
// HrefPattern (when set). At least one of the two must be set.
type LinkRule struct {
	Class       string `json:"class,omitempty"`
	HrefPattern string `json:"href_pattern,omitempty"`
}

// Package render provides the page-rendering capability used for product
// pages: navigate, wait for a marker, click, and read the current DOM.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotInteractive is returned by renderers that cannot act on a page.
var ErrNotInteractive = errors.New("render: renderer is not interactive")

// ElementRef identifies an element to act on: by CSS selector, or by its
// accessible text (visible label or aria-label) when Selector is empty.
type ElementRef struct {
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
}

// IsZero reports whether ref names nothing.
func (ref ElementRef) IsZero() bool {
	return ref.Selector == "" && ref.Text == ""
}

func (ref ElementRef) String() string {
	if ref.Selector != "" {
		return ref.Selector
	}
	return fmt.Sprintf("text=%q", ref.Text)
}

// Renderer is a single, non-reentrant page handle. Callers obtain one from a
// Session and must not share it between goroutines.
type Renderer interface {
	// Navigate loads url and makes it the current page.
	Navigate(ctx context.Context, url string) error
	// WaitFor reports whether an element matching the CSS marker appears
	// within timeout. It never fails; a miss is false.
	WaitFor(ctx context.Context, marker string, timeout time.Duration) bool
	// Click activates the referenced element.
	Click(ctx context.Context, ref ElementRef) error
	// CurrentContent returns the current page markup.
	CurrentContent(ctx context.Context) (string, error)
}

// Load navigates r to url, waits up to timeout for marker (when set) and
// returns the content present afterwards. A missed marker is not an error;
// markerSeen reports it so the caller can log and carry on.
func Load(ctx context.Context, r Renderer, url, marker string, timeout time.Duration) (content string, markerSeen bool, err error) {
	if err := r.Navigate(ctx, url); err != nil {
		return "", false, err
	}

	markerSeen = true
	if marker != "" {
		markerSeen = r.WaitFor(ctx, marker, timeout)
	}

	content, err = r.CurrentContent(ctx)
	if err != nil {
		return "", markerSeen, fmt.Errorf("read content of %s: %w", url, err)
	}
	return content, markerSeen, nil
}

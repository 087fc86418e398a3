package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Source describes where a page should come from.
type Source struct {
	// URL, if provided, is fetched through the Fetcher.
	URL string

	// Stdin is read when URL is empty. A nil Stdin reads as empty.
	Stdin io.Reader
}

// Read returns the page for src: the fetched URL, or all of Stdin.
func (f *Fetcher) Read(ctx context.Context, src Source) (string, error) {
	if strings.TrimSpace(src.URL) != "" {
		return f.Fetch(ctx, src.URL)
	}
	if src.Stdin == nil {
		return "", nil
	}
	b, err := io.ReadAll(src.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

package render

import (
	"context"
	"errors"
	"time"

	"menuscrape/internal/extracthtml"
)

// PageFetcher fetches a page body; *fetch.Fetcher implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Static renders pages as served, without running scripts. WaitFor checks
// the fetched markup once and Click always fails with ErrNotInteractive.
type Static struct {
	fetcher PageFetcher
	url     string
	content string
}

// NewStatic returns a Static renderer backed by f.
func NewStatic(f PageFetcher) *Static {
	return &Static{fetcher: f}
}

func (s *Static) Navigate(ctx context.Context, url string) error {
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	s.url, s.content = url, body
	return nil
}

// WaitFor ignores timeout: static markup cannot change while waiting.
func (s *Static) WaitFor(_ context.Context, marker string, _ time.Duration) bool {
	if s.content == "" {
		return false
	}
	ok, err := extracthtml.Contains(s.content, marker)
	return err == nil && ok
}

func (s *Static) Click(context.Context, ElementRef) error {
	return ErrNotInteractive
}

func (s *Static) CurrentContent(context.Context) (string, error) {
	if s.url == "" {
		return "", errors.New("render: no page loaded")
	}
	return s.content, nil
}

var _ Renderer = (*Static)(nil)

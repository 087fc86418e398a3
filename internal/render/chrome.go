package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"menuscrape/internal/fetch"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configures a headless Chrome browser.
type ChromeOptions struct {
	Headless        bool
	UserAgent       string
	NavigateTimeout time.Duration // per navigation attempt; <= 0 means 30s
	ClickTimeout    time.Duration // <= 0 means 5s
	Policy          fetch.Policy  // retry policy for navigation
	Logger          *slog.Logger
}

// Browser owns one Chrome process. Tabs opened from it are Renderers.
type Browser struct {
	opts          ChromeOptions
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowser starts Chrome. The browser lives until Close, independent of
// ctx cancellation after start-up.
func NewBrowser(ctx context.Context, opts ChromeOptions) (*Browser, error) {
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = fetch.DefaultUserAgent
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Browser{
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewTab opens a new tab.
func (b *Browser) NewTab() (*Chrome, error) {
	tab, cancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(tab); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Chrome{tab: tab, cancel: cancel, opts: b.opts}, nil
}

// Close shuts the browser down, closing every tab.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// Chrome is one browser tab driven over the DevTools protocol.
type Chrome struct {
	tab    context.Context
	cancel context.CancelFunc
	opts   ChromeOptions
}

// Close closes the tab.
func (c *Chrome) Close() { c.cancel() }

// run executes actions on the tab, bounded by timeout and aborted when ctx
// ends. chromedp actions need a context derived from the tab, so ctx
// cancellation is bridged with context.AfterFunc.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.opts.Policy.Do(ctx, url, func(ctx context.Context, attempt int) error {
		c.opts.Logger.Debug("navigate", "url", url, "attempt", attempt)
		if err := c.run(ctx, c.opts.NavigateTimeout, chromedp.Navigate(url)); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		return nil
	})
}

func (c *Chrome) WaitFor(ctx context.Context, marker string, timeout time.Duration) bool {
	return c.run(ctx, timeout, chromedp.WaitReady(marker, chromedp.ByQuery)) == nil
}

func (c *Chrome) Click(ctx context.Context, ref ElementRef) error {
	var action chromedp.Action
	switch {
	case ref.Selector != "":
		action = chromedp.Click(ref.Selector, chromedp.ByQuery, chromedp.NodeVisible)
	case ref.Text != "":
		action = chromedp.Click(accessibleTextXPath(ref.Text), chromedp.BySearch, chromedp.NodeVisible)
	default:
		return fmt.Errorf("click: empty element reference")
	}
	if err := c.run(ctx, c.opts.ClickTimeout, action); err != nil {
		return fmt.Errorf("click %s: %w", ref, err)
	}
	return nil
}

func (c *Chrome) CurrentContent(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.opts.NavigateTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// accessibleTextXPath matches a clickable element (button, role=button,
// link or summary) whose visible text or aria-label contains text.
func accessibleTextXPath(text string) string {
	lit := xpathLiteral(text)
	return fmt.Sprintf(
		`//*[(self::button or @role="button" or self::a or self::summary) and (contains(normalize-space(.), %s) or contains(@aria-label, %s))]`,
		lit, lit,
	)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape syntax.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

var _ Renderer = (*Chrome)(nil)

// Package menu discovers the items of a restaurant menu and turns each one
// into a ProductRecord, either from fragments embedded in the listing page or
// by rendering every linked product page.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/metrics"
	"menuscrape/internal/records"
	"menuscrape/internal/render"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// Mode selects how items are discovered on the listing page.
type Mode string

const (
	// ModeAuto tries embedded fragments first and falls back to product links.
	ModeAuto Mode = "auto"
	// ModeFragments only reads fragments embedded in the listing page.
	ModeFragments Mode = "fragments"
	// ModeLinks only follows product links.
	ModeLinks Mode = "links"
)

// ParseMode parses a discovery mode name. An empty name is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeFragments, ModeLinks:
		return m, nil
	default:
		return "", fmt.Errorf("unknown discovery mode %q (want auto, fragments or links)", s)
	}
}

// State is a step of a menu run, logged at each transition.
type State string

const (
	StateStart       State = "start"
	StateFetching    State = "fetching"
	StateDiscovering State = "discovering"
	StateExtracting  State = "extracting"
	StateCollected   State = "collected"
	StateSkipped     State = "skipped"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// DefaultWaitTimeout bounds waits for page markers and panel reveals.
const DefaultWaitTimeout = 10 * time.Second

// Options configures an Extractor.
type Options struct {
	Profile Profile

	// Fetcher loads the listing page. Required.
	Fetcher render.PageFetcher

	// Session provides renderers for product pages. When nil, one static
	// renderer per worker is created over Fetcher.
	Session *render.Session

	// Workers bounds concurrent product pages; values below 1 mean 1.
	Workers int

	Mode        Mode
	WaitTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Extractor runs menu extractions for one profile.
type Extractor struct {
	profile     Profile
	fetcher     render.PageFetcher
	session     *render.Session
	workers     int
	mode        Mode
	waitTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Recorder
}

// New validates opts and returns an Extractor.
func New(opts Options) (*Extractor, error) {
	if err := opts.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if opts.Fetcher == nil {
		return nil, errors.New("menu: fetcher is required")
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	session := opts.Session
	if session == nil {
		rs := make([]render.Renderer, workers)
		for i := range rs {
			rs[i] = render.NewStatic(opts.Fetcher)
		}
		session = render.NewSession(rs...)
	}

	wait := opts.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		profile:     opts.Profile,
		fetcher:     opts.Fetcher,
		session:     session,
		workers:     workers,
		mode:        mode,
		waitTimeout: wait,
		logger:      logger,
		metrics:     opts.Metrics,
	}, nil
}

// Profile returns the extractor's profile.
func (e *Extractor) Profile() Profile { return e.profile }

// Summary counts the items of one run.
type Summary struct {
	Discovered int `json:"discovered"`
	Extracted  int `json:"extracted"`
	Skipped    int `json:"skipped"`
	Cancelled  int `json:"cancelled"`
	Duplicates int `json:"duplicates"`
}

// Result is the outcome of ExtractMenu.
type Result struct {
	Records records.Corpus
	Summary Summary
}

// ExtractMenu loads the listing page, discovers its items and extracts one
// record per item. An empty listingURL uses the profile's listing URL.
//
// Item failures are logged and counted, never fatal. When ctx ends, items
// not yet started are abandoned and the records collected so far are
// returned together with the context error.
func (e *Extractor) ExtractMenu(ctx context.Context, listingURL string) (Result, error) {
	if listingURL == "" {
		listingURL = e.profile.ListingURL
	}
	log := e.logger.With("listing", listingURL, "mode", string(e.mode))
	log.Info("menu run", "state", StateStart)

	res, err := e.extractMenu(ctx, listingURL, log)
	if err != nil && len(res.Records) == 0 {
		log.Error("menu run", "state", StateFailed, "error", err)
		return res, err
	}

	before := len(res.Records)
	res.Records = records.Dedupe(res.Records)
	res.Summary.Duplicates = before - len(res.Records)

	s := res.Summary
	args := []any{
		"discovered", s.Discovered,
		"extracted", s.Extracted,
		"skipped", s.Skipped,
		"cancelled", s.Cancelled,
		"duplicates", s.Duplicates,
	}
	if err != nil {
		log.Warn("menu run interrupted", append([]any{"state", StateFailed, "error", err}, args...)...)
		return res, err
	}
	log.Info("menu run", append([]any{"state", StateDone}, args...)...)
	return res, nil
}

func (e *Extractor) extractMenu(ctx context.Context, listingURL string, log *slog.Logger) (Result, error) {
	log.Info("menu run", "state", StateFetching)
	start := time.Now()
	body, err := e.fetcher.Fetch(ctx, listingURL)
	e.metrics.RecordStep("listing", err, time.Since(start))
	if err != nil {
		return Result{}, fmt.Errorf("load listing: %w", err)
	}

	log.Info("menu run", "state", StateDiscovering)
	start = time.Now()
	frags, links, err := e.discover(body, listingURL)
	e.metrics.RecordStep("discover", err, time.Since(start))
	if err != nil {
		return Result{}, err
	}

	if frags != nil {
		log.Info("menu run", "state", StateExtracting, "fragments", frags.Length())
		recs, skipped := e.extractFragments(frags, log)
		res := Result{
			Records: recs,
			Summary: Summary{Discovered: frags.Length(), Extracted: len(recs), Skipped: skipped},
		}
		if len(recs) == 0 {
			return res, ErrNoneExtracted
		}
		return res, nil
	}

	log.Info("menu run", "state", StateExtracting, "links", len(links), "workers", e.workers)
	return e.extractLinks(ctx, links, log)
}

// discover returns either the fragment selection or the product links of
// the listing page, according to the extractor's mode.
func (e *Extractor) discover(body, listingURL string) (*goquery.Selection, []string, error) {
	if e.mode != ModeLinks {
		doc, err := extracthtml.ParseHTML(body)
		if err != nil {
			return nil, nil, err
		}
		if sel, idx := extracthtml.FirstMatching(doc.Selection, e.profile.ItemContainers); idx >= 0 {
			e.logger.Debug("fragments found", "container", e.profile.ItemContainers[idx], "count", sel.Length())
			return sel, nil, nil
		}
		if e.mode == ModeFragments {
			return nil, nil, ErrDiscoveryEmpty
		}
	}

	links := extracthtml.DiscoverLinks(body, listingURL, e.profile.ProductLinks)
	if len(links) == 0 {
		return nil, nil, ErrDiscoveryEmpty
	}
	return nil, links, nil
}

// extractLinks scrapes every product link with at most e.workers pages in
// flight. Records keep discovery order.
func (e *Extractor) extractLinks(ctx context.Context, links []string, log *slog.Logger) (Result, error) {
	var (
		results            = make([]*records.ProductRecord, len(links))
		extracted, skipped atomic.Int64
		g                  errgroup.Group
	)
	g.SetLimit(e.workers)

	for i, u := range links {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ilog := log.With("item", i, "url", u)
			ilog.Debug("item", "state", StateFetching)

			start := time.Now()
			rec, err := e.ScrapeProduct(ctx, u)
			e.metrics.RecordStep("item", err, time.Since(start))
			switch {
			case err != nil && ctx.Err() != nil:
				// Interrupted mid-item; counted as cancelled below.
			case err != nil:
				skipped.Add(1)
				e.metrics.RecordItem(metrics.ItemSkipped)
				ilog.Warn("item", "state", StateSkipped, "error", err)
			default:
				results[i] = &rec
				extracted.Add(1)
				e.metrics.RecordItem(metrics.ItemExtracted)
				ilog.Info("item", "state", StateCollected, "name", rec.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Summary: Summary{
		Discovered: len(links),
		Extracted:  int(extracted.Load()),
		Skipped:    int(skipped.Load()),
	}}
	res.Summary.Cancelled = res.Summary.Discovered - res.Summary.Extracted - res.Summary.Skipped
	for i := 0; i < res.Summary.Cancelled; i++ {
		e.metrics.RecordItem(metrics.ItemCancelled)
	}
	for _, r := range results {
		if r != nil {
			res.Records = append(res.Records, *r)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("menu extraction interrupted: %w", err)
	}
	if len(res.Records) == 0 {
		return res, ErrNoneExtracted
	}
	return res, nil
}

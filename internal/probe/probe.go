// Package probe checks a selector profile against live pages.
//
// A probe fetches the listing page and a bounded sample of product pages
// and reports, per discovery selector and per field chain, what matched.
// It is used to tell whether a site redesign broke a profile before a full
// scrape runs.
//
// Only the listing fetch can fail a probe; problems with sampled product
// pages are recorded in the report.
package probe

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/menu"
	"menuscrape/internal/nutrition"
	"menuscrape/internal/records"
	"menuscrape/internal/render"
	"menuscrape/internal/textnorm"

	"github.com/jedib0t/go-pretty/v6/table"
)

// DefaultSample is the number of product pages probed when Options.Sample
// is not set.
const DefaultSample = 3

// Options control a probe run.
type Options struct {
	Profile menu.Profile
	// ListingURL overrides Profile.ListingURL.
	ListingURL string
	// Sample bounds the number of product pages fetched; 0 means
	// DefaultSample and a negative value skips product pages.
	Sample int
}

// SelectorHit is the match count of one item container selector.
type SelectorHit struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
}

// FieldHit reports which locator of a chain produced a value.
type FieldHit struct {
	Value   string `json:"value"`
	Locator int    `json:"locator"` // -1 when the chain is exhausted
}

// PageReport describes one probed product page or fragment.
type PageReport struct {
	URL           string              `json:"url,omitempty"`
	Fragment      int                 `json:"fragment,omitempty"`
	ReadyMarker   bool                `json:"ready_marker"`
	RegionPresent bool                `json:"region_present"`
	PanelRows     int                 `json:"panel_rows"`
	Fields        map[string]FieldHit `json:"fields"`
	Nutrition     records.Nutrition   `json:"nutrition"`
	Error         string              `json:"error,omitempty"`
}

// Report is the outcome of a probe.
type Report struct {
	Site       string         `json:"site"`
	ListingURL string         `json:"listing_url"`
	Bytes      int            `json:"bytes"`
	Containers []SelectorHit  `json:"containers"`
	Links      []string       `json:"links"`
	Pages      []PageReport   `json:"pages"`
	Coverage   map[string]int `json:"coverage"`
}

// Probe runs opts.Profile against the listing page and a sample of its
// items, fetched through f.
func Probe(ctx context.Context, f render.PageFetcher, opts Options) (Report, error) {
	p := opts.Profile
	listing := opts.ListingURL
	if listing == "" {
		listing = p.ListingURL
	}
	sample := opts.Sample
	if sample == 0 {
		sample = DefaultSample
	}

	ex, err := menu.New(menu.Options{Profile: p, Fetcher: f, Mode: menu.ModeLinks})
	if err != nil {
		return Report{}, err
	}

	body, err := f.Fetch(ctx, listing)
	if err != nil {
		return Report{}, fmt.Errorf("probe listing: %w", err)
	}
	doc, err := extracthtml.ParseHTML(body)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		Site:       p.Site,
		ListingURL: listing,
		Bytes:      len(body),
		Links:      extracthtml.DiscoverLinks(body, listing, p.ProductLinks),
		Coverage:   make(map[string]int),
	}
	for _, sel := range p.ItemContainers {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		rep.Containers = append(rep.Containers, SelectorHit{Selector: sel, Count: doc.Find(sel).Length()})
	}

	if sample > 0 {
		if items, idx := extracthtml.FirstMatching(doc.Selection, p.ItemContainers); idx >= 0 {
			for i := 0; i < items.Length() && i < sample; i++ {
				html, err := items.Eq(i).Html()
				pr := PageReport{Fragment: i + 1}
				if err != nil {
					pr.Error = err.Error()
				} else {
					pr = probePage(ex, "<div>"+html+"</div>")
					pr.Fragment = i + 1
				}
				rep.add(pr)
			}
		}

		for i := 0; i < len(rep.Links) && i < sample; i++ {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			u := rep.Links[i]
			page, err := f.Fetch(ctx, u)
			if err != nil {
				rep.add(PageReport{URL: u, Error: err.Error()})
				continue
			}
			pr := probePage(ex, page)
			pr.URL = u
			rep.add(pr)
		}
	}
	return rep, nil
}

func (r *Report) add(pr PageReport) {
	r.Pages = append(r.Pages, pr)
	for k, h := range pr.Fields {
		if h.Value != "" {
			r.Coverage[k]++
		}
	}
	for k, v := range pr.Nutrition.Map() {
		if v != "" {
			r.Coverage["nutrition."+k]++
		}
	}
}

func probePage(ex *menu.Extractor, content string) PageReport {
	p := ex.Profile()
	pr := PageReport{Fields: make(map[string]FieldHit)}

	doc, err := extracthtml.ParseHTML(content)
	if err != nil {
		pr.Error = err.Error()
		return pr
	}
	root := doc.Selection

	if p.ReadyMarker != "" {
		pr.ReadyMarker = root.Find(p.ReadyMarker).Length() > 0
	}
	if p.Nutrition.Region != "" {
		pr.RegionPresent = root.Find(p.Nutrition.Region).Length() > 0
	}
	pr.PanelRows = len(nutrition.CollectEntries(root, p.Nutrition.Primary)) +
		len(nutrition.CollectEntries(root, p.Nutrition.Secondary))

	for name, chain := range map[string]extracthtml.LocatorChain{
		"name":        p.Fields.Name,
		"description": p.Fields.Description,
		"portion":     p.Fields.Portion,
	} {
		v, idx := extracthtml.ResolveTrace(root, chain)
		if name == "portion" {
			v = textnorm.CleanPortion(v)
		}
		pr.Fields[name] = FieldHit{Value: v, Locator: idx}
	}

	rec, err := ex.ExtractProduct(content)
	if err != nil {
		pr.Error = err.Error()
	}
	pr.Nutrition = rec.Nutrition
	return pr
}

// Text writes a human-readable summary of r.
func (r Report) Text(w io.Writer) {
	fmt.Fprintf(w, "site: %s\nlisting: %s (%d bytes)\n", r.Site, r.ListingURL, r.Bytes)
	containers := newTable(w)
	containers.AppendHeader(table.Row{"container selector", "matches"})
	for _, c := range r.Containers {
		containers.AppendRow(table.Row{c.Selector, c.Count})
	}
	containers.Render()
	fmt.Fprintf(w, "product links: %d\n", len(r.Links))

	for _, pg := range r.Pages {
		label := pg.URL
		if label == "" {
			label = fmt.Sprintf("fragment #%d", pg.Fragment)
		}
		fmt.Fprintf(w, "page %s\n", label)
		if pg.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", pg.Error)
		}
		fmt.Fprintf(w, "  ready_marker=%v region=%v panel_rows=%d\n", pg.ReadyMarker, pg.RegionPresent, pg.PanelRows)
		for _, k := range sortedKeys(pg.Fields) {
			h := pg.Fields[k]
			fmt.Fprintf(w, "  %-12s [%d] %q\n", k, h.Locator, h.Value)
		}
	}

	if len(r.Pages) == 0 {
		return
	}
	fmt.Fprintf(w, "coverage (%d pages):\n", len(r.Pages))
	cov := newTable(w)
	cov.AppendHeader(table.Row{"field", "populated"})
	for _, k := range append([]string{"name", "description", "portion"}, prefixed("nutrition.", records.MetricKeys)...) {
		cov.AppendRow(table.Row{k, fmt.Sprintf("%d/%d", r.Coverage[k], len(r.Pages))})
	}
	cov.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Gaps returns the fields that no probed page populated.
func (r Report) Gaps() []string {
	if len(r.Pages) == 0 {
		return nil
	}
	var out []string
	for _, k := range append([]string{"name", "description", "portion"}, prefixed("nutrition.", records.MetricKeys)...) {
		if r.Coverage[k] == 0 {
			out = append(out, k)
		}
	}
	return out
}

func sortedKeys(m map[string]FieldHit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func prefixed(prefix string, xs []string) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = prefix + x
	}
	return out
}

package menu

import (
	"context"
	"fmt"
	"log/slog"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/metrics"
	"menuscrape/internal/nutrition"
	"menuscrape/internal/records"
	"menuscrape/internal/render"
	"menuscrape/internal/textnorm"

	"github.com/PuerkitoBio/goquery"
)

// ExtractProduct builds a record from a product page or item fragment.
// It fails only when content cannot be parsed or has no name; every other
// field degrades to "".
func (e *Extractor) ExtractProduct(content string) (records.ProductRecord, error) {
	doc, err := extracthtml.ParseHTML(content)
	if err != nil {
		return records.ProductRecord{}, err
	}
	return e.extractRecord(doc.Selection)
}

func (e *Extractor) extractRecord(root *goquery.Selection) (records.ProductRecord, error) {
	p := e.profile

	rec := records.ProductRecord{
		Name:        extracthtml.Resolve(root, p.Fields.Name),
		Description: extracthtml.Resolve(root, p.Fields.Description),
		Portion:     extracthtml.ResolveFunc(root, p.Fields.Portion, textnorm.CleanPortion),
	}
	if rec.Name == "" {
		return records.ProductRecord{}, ErrExtractionEmpty
	}

	rec.Nutrition = nutrition.Extract(
		nutrition.CollectEntries(root, p.Nutrition.Primary),
		nutrition.CollectEntries(root, p.Nutrition.Secondary),
	)
	nutrition.Fallback(root, p.Nutrition.Fallback, &rec.Nutrition)
	return rec, nil
}

// ScrapeProduct renders one product page and extracts its record.
//
// The renderer is held for the whole page. A page without a name is skipped
// before any panel interaction. When the detailed nutrition panel
// is collapsed its toggle is activated first; a reveal that fails is logged
// and extraction continues with whatever the page shows.
func (e *Extractor) ScrapeProduct(ctx context.Context, url string) (records.ProductRecord, error) {
	r, release, err := e.session.Acquire(ctx)
	if err != nil {
		return records.ProductRecord{}, err
	}
	defer release()

	log := e.logger.With("url", url)

	content, ready, err := render.Load(ctx, r, url, e.profile.ReadyMarker, e.waitTimeout)
	if err != nil {
		return records.ProductRecord{}, err
	}
	if !ready {
		log.Warn("ready marker not seen; extracting anyway", "marker", e.profile.ReadyMarker)
	}

	doc, err := extracthtml.ParseHTML(content)
	if err != nil {
		return records.ProductRecord{}, fmt.Errorf("%s: %w", url, err)
	}
	if extracthtml.Resolve(doc.Selection, e.profile.Fields.Name) == "" {
		return records.ProductRecord{}, fmt.Errorf("%s: %w", url, ErrExtractionEmpty)
	}

	if err := e.revealPanel(ctx, r, content); err != nil {
		if ctx.Err() != nil {
			return records.ProductRecord{}, ctx.Err()
		}
		log.Warn("nutrition panel not revealed", "error", err)
	} else if after, err := r.CurrentContent(ctx); err == nil {
		content = after
	} else {
		log.Warn("re-read after reveal failed", "error", err)
	}

	rec, err := e.ExtractProduct(content)
	if err != nil {
		return records.ProductRecord{}, fmt.Errorf("%s: %w", url, err)
	}
	return rec, nil
}

// revealPanel expands the detailed nutrition panel. It is a no-op when the
// profile has no toggle or the panel region is already in content.
func (e *Extractor) revealPanel(ctx context.Context, r render.Renderer, content string) error {
	np := e.profile.Nutrition
	if np.Toggle.IsZero() || np.Region == "" {
		return nil
	}
	if present, err := extracthtml.Contains(content, np.Region); err == nil && present {
		return nil
	}

	if err := r.Click(ctx, np.Toggle); err != nil {
		return fmt.Errorf("%w: click %s: %w", ErrPanelRevealTimeout, np.Toggle, err)
	}
	if !r.WaitFor(ctx, np.Region, e.waitTimeout) {
		return fmt.Errorf("%w: %s within %s", ErrPanelRevealTimeout, np.Region, e.waitTimeout)
	}
	return nil
}

// extractFragments extracts one record per fragment in sel. Fragments
// without a name are skipped and counted.
func (e *Extractor) extractFragments(sel *goquery.Selection, log *slog.Logger) (records.Corpus, int) {
	var (
		out     records.Corpus
		skipped int
	)
	sel.Each(func(i int, frag *goquery.Selection) {
		rec, err := e.extractRecord(frag)
		if err != nil {
			skipped++
			log.Debug("fragment skipped", "index", i, "error", err)
			e.metrics.RecordItem(metrics.ItemSkipped)
			return
		}
		e.metrics.RecordItem(metrics.ItemExtracted)
		out = append(out, rec)
	})
	return out, skipped
}

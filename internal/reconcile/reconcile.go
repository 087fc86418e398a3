// Package reconcile merges a freshly scraped corpus into a baseline corpus.
package reconcile

import (
	"fmt"

	"menuscrape/internal/records"

	"dario.cat/mergo"
)

// Options controls Merge.
type Options struct {
	// AppendNew appends incoming records whose name is not in the baseline,
	// in incoming order. By default they are dropped.
	AppendNew bool
}

// Stats counts what Merge did to each record.
type Stats struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Appended  int `json:"appended"`
	Dropped   int `json:"dropped"`
}

// Merge returns a new corpus with incoming values laid over existing.
//
// Records are matched by exact name. For a matched record, portion and each
// nutrition key take the incoming value when it is non-empty; name and
// description are kept. Neither input is modified.
func Merge(existing, incoming records.Corpus, opts Options) (records.Corpus, Stats, error) {
	var st Stats

	byName := incoming.Index()
	matched := make(map[string]bool, len(byName))

	out := make(records.Corpus, 0, len(existing))
	for _, base := range existing {
		i, ok := byName[base.Name]
		if !ok || base.Name == "" {
			out = append(out, base)
			st.Unchanged++
			continue
		}
		matched[base.Name] = true

		merged, err := mergeRecord(base, incoming[i])
		if err != nil {
			return nil, Stats{}, fmt.Errorf("merge %q: %w", base.Name, err)
		}
		if merged == base {
			st.Unchanged++
		} else {
			st.Updated++
		}
		out = append(out, merged)
	}

	for _, r := range records.Dedupe(incoming) {
		if matched[r.Name] {
			continue
		}
		if !opts.AppendNew {
			st.Dropped++
			continue
		}
		out = append(out, r)
		st.Appended++
	}
	return out, st, nil
}

// mergeRecord overlays the non-empty portion and nutrition values of fresh
// onto a copy of base.
func mergeRecord(base, fresh records.ProductRecord) (records.ProductRecord, error) {
	patch := records.ProductRecord{
		Portion:   fresh.Portion,
		Nutrition: fresh.Nutrition,
	}
	merged := base
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return base, err
	}
	return merged, nil
}

// Package api serves a scraped menu corpus over HTTP.
package api

import (
	"errors"
	"strings"

	"menuscrape/internal/records"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrFieldNotFound   = errors.New("field not found")
)

// Catalog is a read-only lookup table over a corpus.
type Catalog struct {
	items  records.Corpus
	byName map[string]int
}

// NewCatalog indexes a copy of c.
func NewCatalog(c records.Corpus) *Catalog {
	items := make(records.Corpus, len(c))
	copy(items, c)

	byName := make(map[string]int, len(items))
	for i, r := range items {
		key := foldName(r.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = i
		}
	}
	return &Catalog{items: items, byName: byName}
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Len is the number of records.
func (c *Catalog) Len() int { return len(c.items) }

// All returns every record in corpus order.
func (c *Catalog) All() records.Corpus {
	out := make(records.Corpus, len(c.items))
	copy(out, c.items)
	return out
}

// ByIndex returns the record at position i.
func (c *Catalog) ByIndex(i int) (records.ProductRecord, error) {
	if i < 0 || i >= len(c.items) {
		return records.ProductRecord{}, ErrProductNotFound
	}
	return c.items[i], nil
}

// ByName returns the first record whose name matches case-insensitively.
func (c *Catalog) ByName(name string) (records.ProductRecord, error) {
	i, ok := c.byName[foldName(name)]
	if !ok {
		return records.ProductRecord{}, ErrProductNotFound
	}
	return c.items[i], nil
}

// Field returns one field of a product: name, description, portion, the
// whole nutrition object, or a single nutrition key.
func (c *Catalog) Field(name, field string) (any, error) {
	r, err := c.ByName(name)
	if err != nil {
		return nil, err
	}
	switch field {
	case "name":
		return r.Name, nil
	case "description":
		return r.Description, nil
	case "portion":
		return r.Portion, nil
	case "nutrition":
		return r.Nutrition, nil
	}
	if v, ok := r.Nutrition.Get(field); ok {
		return v, nil
	}
	return nil, ErrFieldNotFound
}

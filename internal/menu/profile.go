package menu

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/nutrition"
	"menuscrape/internal/records"
	"menuscrape/internal/render"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// Profile is the site-specific part of a scrape: where items live on the
// listing page and where each field lives on a product page or fragment.
type Profile struct {
	Site       string `json:"site"`
	ListingURL string `json:"listing_url"`

	// ItemContainers are ordered fallback selectors for item fragments on
	// the listing page; the first selector that matches anything wins.
	ItemContainers []string `json:"item_containers"`

	// ProductLinks selects per-product page links on the listing page.
	ProductLinks extracthtml.LinkRule `json:"product_links"`

	// ReadyMarker is a CSS selector present once a product page has rendered.
	ReadyMarker string `json:"ready_marker"`

	Fields    FieldChains    `json:"fields"`
	Nutrition NutritionPanel `json:"nutrition"`
}

// FieldChains are the locator chains of the text fields.
type FieldChains struct {
	Name        extracthtml.LocatorChain `json:"name"`
	Description extracthtml.LocatorChain `json:"description"`
	Portion     extracthtml.LocatorChain `json:"portion"`
}

// NutritionPanel describes the nutrition regions of a product page.
type NutritionPanel struct {
	Primary   extracthtml.PairSpec `json:"primary"`
	Secondary extracthtml.PairSpec `json:"secondary"`

	// Toggle is the control that expands the detailed panel.
	Toggle render.ElementRef `json:"toggle"`
	// Region is present once the detailed panel is expanded.
	Region string `json:"region"`

	// Fallback holds text-pattern chains per metric key, used for keys the
	// panels left empty.
	Fallback map[string]extracthtml.LocatorChain `json:"fallback"`
}

// DefaultListingURL is the full menu of the Ukrainian McDonald's site.
const DefaultListingURL = "https://www.mcdonalds.com/ua/uk-ua/eat/fullmenu.html"

// DefaultProfile returns the built-in profile for the McDonald's Ukraine
// menu. The legacy single-page layout (".menu-item" fragments) is kept as
// the fragment fallback.
func DefaultProfile() Profile {
	return Profile{
		Site:       "mcdonalds-ua",
		ListingURL: DefaultListingURL,
		ItemContainers: []string{
			".menu-item",
			".cmp-category__item .cmp-product-card",
		},
		ProductLinks: extracthtml.LinkRule{
			Class:       "cmp-category__item-link",
			HrefPattern: `/product/`,
		},
		ReadyMarker: ".cmp-product-details-main",
		Fields: FieldChains{
			Name: extracthtml.LocatorChain{
				extracthtml.Structure(".cmp-product-details-main__heading-title"),
				extracthtml.Structure(".item-name"),
				extracthtml.Structure("h1"),
				extracthtml.Attribute(`meta[property="og:title"]`, "content"),
			},
			Description: extracthtml.LocatorChain{
				extracthtml.Structure(".cmp-product-details-main__description"),
				extracthtml.Structure(".item-description"),
				extracthtml.Attribute(`meta[name="description"]`, "content"),
			},
			Portion: extracthtml.LocatorChain{
				extracthtml.Structure(".cmp-product-details-main__sub-heading"),
				extracthtml.Structure(".portion-size"),
				extracthtml.Structure(".cmp-nutrition-summary__heading-primary"),
			},
		},
		Nutrition: NutritionPanel{
			Primary: extracthtml.PairSpec{
				Rows:  ".cmp-nutrition-summary__heading-primary-item",
				Label: ".metric",
				Value: ".value",
			},
			Secondary: extracthtml.PairSpec{
				Rows:  ".cmp-nutrition-summary__details-column-view-desktop .label-item",
				Label: ".metric",
				Value: ".value",
			},
			Toggle: render.ElementRef{Text: "Харчова цінність"},
			Region: ".cmp-nutrition-summary__details-column-view-desktop",
			Fallback: nutrition.DefaultFallback(),
		},
	}
}

// LoadProfile reads a JSON profile from path and lays it over
// DefaultProfile, so a file only needs the fields it changes. JSON5 syntax
// (comments, trailing commas, unquoted keys) is accepted. The result is
// validated.
func LoadProfile(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var override Profile
	if err := json5.Unmarshal(b, &override); err != nil {
		return Profile{}, fmt.Errorf("parse profile json: %w", err)
	}

	p := DefaultProfile()
	if err := mergo.Merge(&p, override, mergo.WithOverride); err != nil {
		return Profile{}, fmt.Errorf("merge profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks that p can drive an extraction.
//
// Text-pattern locators are only allowed in nutrition fallback chains; the
// name, description and portion chains must address page structure.
func (p Profile) Validate() error {
	var errs []error

	if len(p.Fields.Name) == 0 {
		errs = append(errs, errors.New("fields.name: empty locator chain"))
	}
	for field, chain := range map[string]extracthtml.LocatorChain{
		"name":        p.Fields.Name,
		"description": p.Fields.Description,
		"portion":     p.Fields.Portion,
	} {
		if chain.HasTextPattern() {
			errs = append(errs, fmt.Errorf("fields.%s: pattern locators are only allowed in nutrition fallback chains", field))
		}
		errs = append(errs, validateChain("fields."+field, chain)...)
	}

	if len(nonEmpty(p.ItemContainers)) == 0 && p.ProductLinks.Class == "" && p.ProductLinks.HrefPattern == "" {
		errs = append(errs, errors.New("no discovery method: set item_containers or product_links"))
	}
	if p.ProductLinks.HrefPattern != "" {
		if _, err := regexp.Compile(p.ProductLinks.HrefPattern); err != nil {
			errs = append(errs, fmt.Errorf("product_links.href_pattern: %w", err))
		}
	}

	for key, chain := range p.Nutrition.Fallback {
		if !records.IsMetricKey(key) {
			errs = append(errs, fmt.Errorf("nutrition.fallback: unknown metric key %q", key))
			continue
		}
		errs = append(errs, validateChain("nutrition.fallback."+key, chain)...)
	}

	return errors.Join(errs...)
}

func validateChain(path string, chain extracthtml.LocatorChain) []error {
	var errs []error
	for i, l := range chain {
		switch l.Kind {
		case extracthtml.ByStructure:
		case extracthtml.ByAttribute:
			if l.Attr == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: attribute locator without attr", path, i))
			}
		case extracthtml.ByTextPattern:
			if _, err := regexp.Compile(l.Pattern); err != nil || strings.TrimSpace(l.Pattern) == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: invalid pattern %q", path, i, l.Pattern))
			}
		default:
			errs = append(errs, fmt.Errorf("%s[%d]: unknown locator kind %q", path, i, l.Kind))
		}
	}
	return errs
}

func nonEmpty(xs []string) []string {
	var out []string
	for _, x := range xs {
		if strings.TrimSpace(x) != "" {
			out = append(out, x)
		}
	}
	return out
}

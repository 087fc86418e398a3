// Package nutrition maps labelled nutrition panel entries onto the fixed
// seven-key schema of records.Nutrition.
package nutrition

import (
	"strings"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/records"
	"menuscrape/internal/textnorm"

	"github.com/PuerkitoBio/goquery"
)

// Entry is one (label, value) pair read from a nutrition panel.
type Entry = extracthtml.Pair

// PanelSpec describes how to read entries from one panel region.
type PanelSpec = extracthtml.PairSpec

// labelMap translates canonical panel labels (see textnorm.CanonicalLabel)
// into metric keys. It covers the Ukrainian, Russian and English spellings
// seen on menu pages and is never written after init.
var labelMap = map[string]string{
	// calories
	"калорійність":            records.KeyCalories,
	"калорії":                 records.KeyCalories,
	"енергетична цінність":    records.KeyCalories,
	"енергетична":             records.KeyCalories,
	"енергія":                 records.KeyCalories,
	"ккал":                    records.KeyCalories,
	"калорийность":            records.KeyCalories,
	"калории":                 records.KeyCalories,
	"энергетическая ценность": records.KeyCalories,
	"энергетическая":          records.KeyCalories,
	"calories":                records.KeyCalories,
	"energy":                  records.KeyCalories,
	"kcal":                    records.KeyCalories,

	// fats
	"жири":      records.KeyFats,
	"жир":       records.KeyFats,
	"жиры":      records.KeyFats,
	"fat":       records.KeyFats,
	"fats":      records.KeyFats,
	"total fat": records.KeyFats,

	// carbs
	"вуглеводи":     records.KeyCarbs,
	"углеводы":      records.KeyCarbs,
	"carbohydrates": records.KeyCarbs,
	"carbohydrate":  records.KeyCarbs,
	"carbs":         records.KeyCarbs,

	// proteins
	"білки":    records.KeyProteins,
	"білок":    records.KeyProteins,
	"белки":    records.KeyProteins,
	"protein":  records.KeyProteins,
	"proteins": records.KeyProteins,

	// sugar
	"цукор":  records.KeySugar,
	"цукри":  records.KeySugar,
	"сахар":  records.KeySugar,
	"сахара": records.KeySugar,
	"sugar":  records.KeySugar,
	"sugars": records.KeySugar,

	// salt
	"сіль":   records.KeySalt,
	"соль":   records.KeySalt,
	"salt":   records.KeySalt,
	"sodium": records.KeySalt,

	// saturated fatty acids; stored under the corpus key unsaturated_fats
	"нжк":                       records.KeyUnsaturatedFats,
	"насичені жири":             records.KeyUnsaturatedFats,
	"насичені жирні кислоти":    records.KeyUnsaturatedFats,
	"насичені":                  records.KeyUnsaturatedFats,
	"насыщенные жиры":           records.KeyUnsaturatedFats,
	"насыщенные жирные кислоты": records.KeyUnsaturatedFats,
	"saturated fat":             records.KeyUnsaturatedFats,
	"saturated fats":            records.KeyUnsaturatedFats,
	"unsaturated fats":          records.KeyUnsaturatedFats,
}

// subRowPrefixes introduce a sub-row of another metric ("з них цукри").
var subRowPrefixes = []string{
	"з них", "із них", "у т.ч.", "в т.ч.", "у т. ч.", "в т. ч.",
	"у тому числі", "в тому числі", "из них", "в том числе",
	"of which", "including", "incl.",
}

// Lookup returns the metric key for a raw panel label. A leading sub-row
// qualifier is dropped, then the canonical label is tried whole, cut before
// its first "," or "(" ("saturated fat, g"), and finally by first token.
func Lookup(label string) (string, bool) {
	canon := stripSubRowPrefix(textnorm.CanonicalLabel(label))
	if canon == "" {
		return "", false
	}
	if key, ok := labelMap[canon]; ok {
		return key, true
	}
	if i := strings.IndexAny(canon, ",("); i > 0 {
		if key, ok := labelMap[strings.TrimSpace(canon[:i])]; ok {
			return key, true
		}
	}
	if tok := textnorm.FirstToken(canon); tok != canon {
		key, ok := labelMap[tok]
		return key, ok
	}
	return "", false
}

func stripSubRowPrefix(canon string) string {
	for _, p := range subRowPrefixes {
		if rest, ok := strings.CutPrefix(canon, p); ok && (rest == "" || rest[0] == ' ' || strings.HasSuffix(p, ".")) {
			return strings.TrimLeft(rest, " :")
		}
	}
	return canon
}

// CollectEntries reads panel entries below root according to spec.
func CollectEntries(root *goquery.Selection, spec PanelSpec) []Entry {
	return extracthtml.CollectPairs(root, spec)
}

// Extract maps panel entries onto the nutrition schema.
//
// Primary entries are applied first; secondary entries only fill keys that
// are still unset. A key counts as set once a matching label produced a
// non-empty cleaned value, so the first such value wins within a region too.
// Unknown labels are ignored and unresolved keys stay "".
func Extract(primary, secondary []Entry) records.Nutrition {
	var n records.Nutrition
	set := make(map[string]bool, len(records.MetricKeys))

	apply := func(entries []Entry) {
		for _, e := range entries {
			key, ok := Lookup(e.Label)
			if !ok || set[key] {
				continue
			}
			v := textnorm.CleanNutritionValue(e.Value)
			if v == "" {
				continue
			}
			n.Set(key, v)
			set[key] = true
		}
	}
	apply(primary)
	apply(secondary)
	return n
}

// Fallback fills every key of n that is still empty by resolving the key's
// locator chain in chains against root. Resolved values go through
// textnorm.CleanNutritionValue. Keys without a chain are left alone.
func Fallback(root *goquery.Selection, chains map[string]extracthtml.LocatorChain, n *records.Nutrition) {
	if root == nil || n == nil {
		return
	}
	for _, key := range records.MetricKeys {
		if v, _ := n.Get(key); v != "" {
			continue
		}
		chain, ok := chains[key]
		if !ok || len(chain) == 0 {
			continue
		}
		if v := textnorm.CleanNutritionValue(extracthtml.Resolve(root, chain)); v != "" {
			n.Set(key, v)
		}
	}
}

// DefaultFallback returns text-pattern chains that find metrics written as
// running text ("Жири 12 г") when no panel could be read. Each call returns
// a fresh map.
func DefaultFallback() map[string]extracthtml.LocatorChain {
	const num = `(\d+(?:[.,]\d+)?\s*(?:ккал|kcal|г|g))`
	return map[string]extracthtml.LocatorChain{
		records.KeyCalories: {
			extracthtml.TextPattern(`(?i)(?:калорійність|енергетична цінність|calories|energy)\s*:?\s*` + num),
			extracthtml.TextPattern(`(?i)(\d+(?:[.,]\d+)?\s*(?:ккал|kcal))`),
		},
		// "Жири" must open the text, follow punctuation or a previous
		// value, or be "total fat", so "Насичені жири" and "Saturated fat"
		// never match.
		records.KeyFats: {
			extracthtml.TextPattern(`(?i)(?:^|[^\p{L}\s]\s*|\d\s*(?:ккал|kcal|гр|г|gr|g)\s+|total\s+)(?:жири|fats?)\s*:?\s*` + num),
		},
		records.KeyCarbs: {
			extracthtml.TextPattern(`(?i)(?:вуглеводи|carbohydrates)\s*:?\s*` + num),
		},
		records.KeyProteins: {
			extracthtml.TextPattern(`(?i)(?:білки|protein)\s*:?\s*` + num),
		},
		records.KeySugar: {
			extracthtml.TextPattern(`(?i)(?:цукор|цукри|sugars?)\s*:?\s*` + num),
		},
		records.KeySalt: {
			extracthtml.TextPattern(`(?i)(?:сіль|salt)\s*:?\s*` + num),
		},
		records.KeyUnsaturatedFats: {
			extracthtml.TextPattern(`(?i)(?:насичені жири|нжк|saturated fat)\s*:?\s*` + num),
		},
	}
}

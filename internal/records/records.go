// Package records defines the product record schema shared by the extractor,
// the reconciler, the corpus store and the lookup API.
package records

// Metric keys of the fixed nutrition schema.
const (
	KeyCalories        = "calories"
	KeyFats            = "fats"
	KeyCarbs           = "carbs"
	KeyProteins        = "proteins"
	KeySugar           = "sugar"
	KeySalt            = "salt"
	KeyUnsaturatedFats = "unsaturated_fats"
)

// MetricKeys lists every nutrition key in schema order.
var MetricKeys = []string{
	KeyCalories,
	KeyFats,
	KeyCarbs,
	KeyProteins,
	KeySugar,
	KeySalt,
	KeyUnsaturatedFats,
}

// Nutrition holds the seven nutrition metrics of a product.
//
// Every key is a struct field, so a record can never omit one; unresolved
// metrics are the empty string.
type Nutrition struct {
	Calories        string `json:"calories"`
	Fats            string `json:"fats"`
	Carbs           string `json:"carbs"`
	Proteins        string `json:"proteins"`
	Sugar           string `json:"sugar"`
	Salt            string `json:"salt"`
	UnsaturatedFats string `json:"unsaturated_fats"`
}

// field returns a pointer to the field backing key, or nil for unknown keys.
func (n *Nutrition) field(key string) *string {
	switch key {
	case KeyCalories:
		return &n.Calories
	case KeyFats:
		return &n.Fats
	case KeyCarbs:
		return &n.Carbs
	case KeyProteins:
		return &n.Proteins
	case KeySugar:
		return &n.Sugar
	case KeySalt:
		return &n.Salt
	case KeyUnsaturatedFats:
		return &n.UnsaturatedFats
	default:
		return nil
	}
}

// Get returns the value stored under key and whether key is a metric key.
func (n Nutrition) Get(key string) (string, bool) {
	p := n.field(key)
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set stores v under key. It reports false for keys outside the schema.
func (n *Nutrition) Set(key, v string) bool {
	p := n.field(key)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// Map returns the metrics as a map holding exactly the seven schema keys.
func (n Nutrition) Map() map[string]string {
	out := make(map[string]string, len(MetricKeys))
	for _, k := range MetricKeys {
		v, _ := n.Get(k)
		out[k] = v
	}
	return out
}

// Empty reports whether no metric has a value.
func (n Nutrition) Empty() bool {
	return n == Nutrition{}
}

// IsMetricKey reports whether key belongs to the nutrition schema.
func IsMetricKey(key string) bool {
	var n Nutrition
	return n.field(key) != nil
}

// ProductRecord is one scraped menu product.
type ProductRecord struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Portion     string    `json:"portion"`
	Nutrition   Nutrition `json:"nutrition"`
}

// Valid reports whether the record has a name. Nameless records are discarded.
func (r ProductRecord) Valid() bool {
	return r.Name != ""
}

// Corpus is an ordered collection of records keyed by name.
type Corpus []ProductRecord

// Dedupe drops nameless records and later duplicates of a name.
// The first occurrence of each name wins; order is preserved.
func Dedupe(in Corpus) Corpus {
	seen := make(map[string]struct{}, len(in))
	out := make(Corpus, 0, len(in))
	for _, r := range in {
		if !r.Valid() {
			continue
		}
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Index maps each name to the position of its first occurrence.
func (c Corpus) Index() map[string]int {
	idx := make(map[string]int, len(c))
	for i, r := range c {
		if _, ok := idx[r.Name]; ok {
			continue
		}
		idx[r.Name] = i
	}
	return idx
}

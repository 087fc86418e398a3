package records

import (
	"encoding/json"
	"testing"
)

// TestNutrition_MapHasAllKeys verifies the zero value still exposes every key.
func TestNutrition_MapHasAllKeys(t *testing.T) {
	t.Parallel()

	m := Nutrition{}.Map()
	if len(m) != len(MetricKeys) {
		t.Fatalf("expected %d keys, got %d", len(MetricKeys), len(m))
	}
	for _, k := range MetricKeys {
		v, ok := m[k]
		if !ok {
			t.Fatalf("missing key %q", k)
		}
		if v != "" {
			t.Fatalf("key %q: expected empty default, got %q", k, v)
		}
	}
}

func TestNutrition_SetGet(t *testing.T) {
	t.Parallel()

	var n Nutrition
	if !n.Set(KeySalt, "1 г") {
		t.Fatalf("Set(salt) returned false")
	}
	if n.Set("fiber", "3 г") {
		t.Fatalf("Set(fiber) should be rejected")
	}
	if got, ok := n.Get(KeySalt); !ok || got != "1 г" {
		t.Fatalf("Get(salt) = %q, %v", got, ok)
	}
	if _, ok := n.Get("fiber"); ok {
		t.Fatalf("Get(fiber) should report unknown key")
	}
	if n.Empty() {
		t.Fatalf("Empty() should be false after Set")
	}
}

// TestProductRecord_JSONShape verifies the nested nutrition object always
// carries the seven keys, even when nothing was scraped.
func TestProductRecord_JSONShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ProductRecord{Name: "Чізбургер"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"name", "description", "portion", "nutrition"} {
		if _, ok := raw[k]; !ok {
			t.Fatalf("missing top-level key %q in %s", k, b)
		}
	}

	var nut map[string]string
	if err := json.Unmarshal(raw["nutrition"], &nut); err != nil {
		t.Fatalf("unmarshal nutrition: %v", err)
	}
	if len(nut) != 7 {
		t.Fatalf("expected 7 nutrition keys, got %d: %v", len(nut), nut)
	}
}

func TestDedupe_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	in := Corpus{
		{Name: "A", Portion: "100 г"},
		{Name: ""},
		{Name: "B"},
		{Name: "A", Portion: "200 г"},
		{Name: "a"},
	}
	got := Dedupe(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d: %#v", len(got), got)
	}
	if got[0].Portion != "100 г" {
		t.Fatalf("first occurrence should win, got %q", got[0].Portion)
	}
	if got[2].Name != "a" {
		t.Fatalf("names are case-sensitive; expected %q kept, got %q", "a", got[2].Name)
	}
}

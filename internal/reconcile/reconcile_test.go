package reconcile

import (
	"testing"

	"menuscrape/internal/records"

	"github.com/google/go-cmp/cmp"
)

func rec(name, desc, portion string, n records.Nutrition) records.ProductRecord {
	return records.ProductRecord{Name: name, Description: desc, Portion: portion, Nutrition: n}
}

func baseline() records.Corpus {
	return records.Corpus{
		rec("Біг Мак", "Два біфштекси", "200 г", records.Nutrition{Calories: "500 ккал", Fats: "25 г", Salt: "2 г"}),
		rec("Картопля фрі", "Хрустка", "", records.Nutrition{}),
		rec("Макфлурі", "Морозиво", "180 г", records.Nutrition{Sugar: "30 г"}),
	}
}

// TestMerge covers overwrite, keep-on-empty, pass-through and drop.
func TestMerge(t *testing.T) {
	t.Parallel()

	existing := baseline()
	incoming := records.Corpus{
		rec("Біг Мак", "Нова назва опису", "", records.Nutrition{Calories: "540 ккал", Fats: "", Proteins: "25 г"}),
		rec("Картопля фрі", "", "150 г", records.Nutrition{Salt: "1 г"}),
		rec("Новинка", "", "100 г", records.Nutrition{}),
	}
	before := baseline()
	incomingCopy := append(records.Corpus(nil), incoming...)

	got, st, err := Merge(existing, incoming, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	want := records.Corpus{
		rec("Біг Мак", "Два біфштекси", "200 г", records.Nutrition{Calories: "540 ккал", Fats: "25 г", Proteins: "25 г", Salt: "2 г"}),
		rec("Картопля фрі", "Хрустка", "150 г", records.Nutrition{Salt: "1 г"}),
		rec("Макфлурі", "Морозиво", "180 г", records.Nutrition{Sugar: "30 г"}),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
	}
	if st != (Stats{Updated: 2, Unchanged: 1, Dropped: 1}) {
		t.Fatalf("stats = %+v", st)
	}

	if diff := cmp.Diff(before, existing); diff != "" {
		t.Fatalf("existing was mutated (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(incomingCopy, incoming); diff != "" {
		t.Fatalf("incoming was mutated (-before +after):\n%s", diff)
	}
}

func TestMerge_AppendNew(t *testing.T) {
	t.Parallel()

	incoming := records.Corpus{
		rec("Новинка 2", "", "", records.Nutrition{}),
		rec("Біг Мак", "", "", records.Nutrition{}),
		rec("Новинка 1", "", "", records.Nutrition{}),
		rec("Новинка 2", "дубль", "", records.Nutrition{}),
	}
	got, st, err := Merge(baseline(), incoming, Options{AppendNew: true})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	want := []string{"Біг Мак", "Картопля фрі", "Макфлурі", "Новинка 2", "Новинка 1"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if got[3].Description != "" {
		t.Fatalf("first incoming duplicate should win, got %q", got[3].Description)
	}
	if st.Appended != 2 || st.Unchanged != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMerge_EmptyInputs(t *testing.T) {
	t.Parallel()

	got, _, err := Merge(nil, baseline(), Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty corpus, got %+v", got)
	}

	got, st, err := Merge(baseline(), nil, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff(baseline(), got); diff != "" {
		t.Fatalf("baseline should pass through (-want +got):\n%s", diff)
	}
	if st.Unchanged != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

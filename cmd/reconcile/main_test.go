package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"menuscrape/internal/corpus"
	"menuscrape/internal/pipeline"
	"menuscrape/internal/records"
)

func writeCorpus(t *testing.T, path string, c records.Corpus) {
	t.Helper()
	if err := corpus.Save(path, c); err != nil {
		t.Fatalf("Save(%s): %v", path, err)
	}
}

func decodeOutcome(t *testing.T, b []byte) pipeline.BaselineOutcome {
	t.Helper()
	var out pipeline.BaselineOutcome
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode stdout %q: %v", b, err)
	}
	return out
}

func TestRun_MergesIntoBaseline(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	fresh := filepath.Join(dir, "fresh.json")

	writeCorpus(t, base, records.Corpus{
		{Name: "Біг Мак", Description: "стара", Portion: "210 г", Nutrition: records.Nutrition{Calories: "500 ккал", Salt: "2 г"}},
		{Name: "Картопля фрі"},
	})
	writeCorpus(t, fresh, records.Corpus{
		{Name: "Біг Мак", Description: "нова", Portion: "", Nutrition: records.Nutrition{Calories: "540 ккал"}},
		{Name: "Новинка"},
	})

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-baseline", base, "-fresh", fresh}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr.String())
	}

	out := decodeOutcome(t, stdout.Bytes())
	if out.Seeded || out.Stats.Updated != 1 || out.Stats.Unchanged != 1 || out.Stats.Dropped != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	got, err := corpus.Load(base)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	bm := got[0]
	if bm.Description != "стара" || bm.Portion != "210 г" || bm.Nutrition.Calories != "540 ккал" || bm.Nutrition.Salt != "2 г" {
		t.Fatalf("unexpected merge: %#v", bm)
	}
}

func TestRun_AppendNewAndSeed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	fresh := filepath.Join(dir, "fresh.json")
	writeCorpus(t, fresh, records.Corpus{{Name: "A"}, {Name: "B"}})

	var stdout bytes.Buffer
	if code := run([]string{"-baseline", base, "-fresh", fresh}, &stdout, &bytes.Buffer{}); code != 0 {
		t.Fatalf("seed exit code = %d", code)
	}
	if out := decodeOutcome(t, stdout.Bytes()); !out.Seeded {
		t.Fatalf("expected seeded baseline: %+v", out)
	}

	writeCorpus(t, fresh, records.Corpus{{Name: "C"}})
	stdout.Reset()
	if code := run([]string{"-baseline", base, "-fresh", fresh, "-append-new"}, &stdout, &bytes.Buffer{}); code != 0 {
		t.Fatalf("append exit code = %d", code)
	}
	if out := decodeOutcome(t, stdout.Bytes()); out.Stats.Appended != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	got, _ := corpus.Load(base)
	if len(got) != 3 || got[2].Name != "C" {
		t.Fatalf("unexpected baseline: %#v", got)
	}
}

func TestRun_DryRunLeavesBaseline(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	fresh := filepath.Join(dir, "fresh.json")
	writeCorpus(t, base, records.Corpus{{Name: "A", Portion: "1 г"}})
	writeCorpus(t, fresh, records.Corpus{{Name: "A", Portion: "2 г"}})

	var stdout bytes.Buffer
	if code := run([]string{"-baseline", base, "-fresh", fresh, "-dry-run"}, &stdout, &bytes.Buffer{}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if out := decodeOutcome(t, stdout.Bytes()); out.Stats.Updated != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	got, _ := corpus.Load(base)
	if got[0].Portion != "1 г" {
		t.Fatalf("dry run modified baseline: %#v", got)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var stderr bytes.Buffer
	if code := run([]string{"-baseline", filepath.Join(dir, "b.json"), "-fresh", filepath.Join(dir, "missing.json")}, &bytes.Buffer{}, &stderr); code != 1 {
		t.Fatalf("missing fresh: exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "load fresh corpus") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if code := run([]string{"-bogus"}, &bytes.Buffer{}, &bytes.Buffer{}); code != 2 {
		t.Fatalf("bad flag: exit code = %d", code)
	}
}

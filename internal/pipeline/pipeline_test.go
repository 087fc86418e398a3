package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"menuscrape/internal/config"
	"menuscrape/internal/corpus"
	"menuscrape/internal/fetch"
	"menuscrape/internal/menu"
	"menuscrape/internal/records"
	"menuscrape/internal/reconcile"

	_ "menuscrape/internal/storage/sqlite"
)

func quietDeps() Deps {
	return Deps{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleeper: &fetch.RecordingSleeper{},
	}
}

func productPage(name, kcal string) string {
	return `<html><body><div class="cmp-product-details-main">
<h1 class="cmp-product-details-main__heading-title">` + name + `</h1>
<div class="cmp-product-details-main__description">Опис</div>
<div class="cmp-product-details-main__sub-heading">Вага: 117г</div>
<div class="cmp-nutrition-summary__heading-primary-item"><span class="value">` + kcal + `</span><span class="metric">Калорійність</span></div>
</div></body></html>`
}

// menuSite serves a listing with n product links; names lists the product
// name of each page.
func menuSite(t *testing.T, names []string, kcal string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/menu.html", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString(`<html><body>`)
		for i := range names {
			fmt.Fprintf(&b, `<a class="cmp-category__item-link" href="/product/%d.html">%d</a>`, i, i)
		}
		b.WriteString(`</body></html>`)
		io.WriteString(w, b.String())
	})
	for i, name := range names {
		page := productPage(name, kcal)
		mux.HandleFunc(fmt.Sprintf("/product/%d.html", i), func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, page)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// interruptingSite is menuSite where fetching product stopAt cancels the run
// and holds the request until the client gives up.
func interruptingSite(t *testing.T, names []string, stopAt int, cancel context.CancelFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/menu.html", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		for i := range names {
			fmt.Fprintf(&b, `<a class="cmp-category__item-link" href="/product/%d.html">%d</a>`, i, i)
		}
		io.WriteString(w, "<html><body>"+b.String()+"</body></html>")
	})
	for i, name := range names {
		i, page := i, productPage(name, "540 ккал")
		mux.HandleFunc(fmt.Sprintf("/product/%d.html", i), func(w http.ResponseWriter, r *http.Request) {
			if i == stopAt {
				cancel()
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
				return
			}
			io.WriteString(w, page)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, listingURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Source.ListingURL = listingURL
	cfg.Source.Mode = string(menu.ModeLinks)
	cfg.Runtime.Workers = 2
	cfg.Output.CorpusPath = filepath.Join(t.TempDir(), "menu_data.json")
	return cfg
}

func TestRun_WritesCorpus(t *testing.T) {
	t.Parallel()

	srv := menuSite(t, []string{"Біг Мак", "Чізбургер"}, "540 ккал")
	cfg := testConfig(t, srv.URL+"/menu.html")

	rep, err := Run(context.Background(), cfg, quietDeps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Records != 2 || rep.Summary.Extracted != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Baseline != nil || rep.Mirrored != 0 {
		t.Fatalf("no baseline or storage configured: %+v", rep)
	}

	got, err := corpus.Load(cfg.Output.CorpusPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Біг Мак" || got[0].Nutrition.Calories != "540 ккал" {
		t.Fatalf("unexpected corpus: %#v", got)
	}
}

func TestRun_SeedsThenReconcilesBaseline(t *testing.T) {
	t.Parallel()

	baseline := filepath.Join(t.TempDir(), "baseline.json")

	srv := menuSite(t, []string{"Біг Мак"}, "540 ккал")
	cfg := testConfig(t, srv.URL+"/menu.html")
	cfg.Output.BaselinePath = baseline

	rep, err := Run(context.Background(), cfg, quietDeps())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if rep.Baseline == nil || !rep.Baseline.Seeded {
		t.Fatalf("expected seeded baseline, got %+v", rep.Baseline)
	}

	srv2 := menuSite(t, []string{"Біг Мак", "Новинка"}, "560 ккал")
	cfg2 := testConfig(t, srv2.URL+"/menu.html")
	cfg2.Output.BaselinePath = baseline

	rep, err = Run(context.Background(), cfg2, quietDeps())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	want := reconcile.Stats{Updated: 1, Dropped: 1}
	if rep.Baseline.Seeded || rep.Baseline.Stats != want {
		t.Fatalf("baseline outcome = %+v, want stats %+v", rep.Baseline, want)
	}

	got, err := corpus.Load(baseline)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Nutrition.Calories != "560 ккал" {
		t.Fatalf("unexpected baseline: %#v", got)
	}
}

func TestRun_MirrorsIntoSQLite(t *testing.T) {
	t.Parallel()

	srv := menuSite(t, []string{"Біг Мак", "Чізбургер", "Біг Мак"}, "540 ккал")
	cfg := testConfig(t, srv.URL+"/menu.html")
	cfg.Storage = config.StorageConfig{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "menu.db")}

	rep, err := Run(context.Background(), cfg, quietDeps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Mirrored != 2 {
		t.Fatalf("mirrored %d rows, want 2", rep.Mirrored)
	}

	repo, err := OpenRepository(context.Background(), cfg.Storage)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	defer repo.Close()
	got, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 2 || got[1].Name != "Чізбургер" {
		t.Fatalf("unexpected rows: %#v", got)
	}
}

func TestRun_InterruptPersistsAndMirrorsPartialCorpus(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := interruptingSite(t, []string{"Біг Мак", "Чізбургер", "Фрі", "Кола"}, 2, cancel)
	cfg := testConfig(t, srv.URL+"/menu.html")
	cfg.Runtime.Workers = 1
	cfg.Storage = config.StorageConfig{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "menu.db")}

	rep, err := Run(ctx, cfg, quietDeps())
	if !IsInterrupted(err) {
		t.Fatalf("expected an interruption, got %v", err)
	}
	if rep.Records != 2 || rep.Summary.Extracted != 2 || rep.Summary.Cancelled != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	got, err := corpus.Load(cfg.Output.CorpusPath)
	if err != nil {
		t.Fatalf("partial corpus not saved: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Біг Мак" || got[1].Name != "Чізбургер" {
		t.Fatalf("unexpected partial corpus: %#v", got)
	}
	if rep.Mirrored != 2 {
		t.Fatalf("mirrored %d rows after interrupt, want 2", rep.Mirrored)
	}
}

func TestRun_PersistFailureKeepsRecords(t *testing.T) {
	t.Parallel()

	srv := menuSite(t, []string{"Біг Мак", "Чізбургер"}, "540 ккал")
	cfg := testConfig(t, srv.URL+"/menu.html")
	cfg.Output.CorpusPath = filepath.Join(t.TempDir(), "missing", "menu.json")

	rep, err := Run(context.Background(), cfg, quietDeps())
	var pe *corpus.PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a PersistError, got %v", err)
	}
	if len(rep.Corpus) != 2 || rep.Corpus[0].Name != "Біг Мак" || rep.Corpus[1].Nutrition.Calories != "540 ккал" {
		t.Fatalf("records not kept in the report: %#v", rep.Corpus)
	}
}

func TestRun_NothingExtracted(t *testing.T) {
	t.Parallel()

	srv := menuSite(t, nil, "")
	cfg := testConfig(t, srv.URL+"/menu.html")

	_, err := Run(context.Background(), cfg, quietDeps())
	if !errors.Is(err, menu.ErrDiscoveryEmpty) {
		t.Fatalf("expected ErrDiscoveryEmpty, got %v", err)
	}
	if corpus.Exists(cfg.Output.CorpusPath) {
		t.Fatalf("no corpus should be written when nothing was extracted")
	}
}

func TestReconcileFile_AppendNew(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "base.json")
	if err := corpus.Save(path, records.Corpus{{Name: "A", Portion: "100 г"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	merged, outcome, err := ReconcileFile(path, records.Corpus{{Name: "B"}}, reconcile.Options{AppendNew: true})
	if err != nil {
		t.Fatalf("ReconcileFile: %v", err)
	}
	if outcome.Seeded || outcome.Stats.Appended != 1 || outcome.Stats.Unchanged != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(merged) != 2 || merged[1].Name != "B" {
		t.Fatalf("unexpected merged corpus: %#v", merged)
	}
}

func TestLoadProfile_ListingOverride(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Source: config.SourceConfig{ListingURL: "https://example.test/menu"}}
	p, err := LoadProfile(cfg)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.ListingURL != "https://example.test/menu" {
		t.Fatalf("ListingURL = %q", p.ListingURL)
	}

	cfg.Source.Profile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := LoadProfile(cfg); err == nil {
		t.Fatalf("expected error for missing profile file")
	}
}

func TestIsInterrupted(t *testing.T) {
	t.Parallel()

	if !IsInterrupted(fmt.Errorf("menu extraction interrupted: %w", context.Canceled)) {
		t.Fatalf("wrapped cancellation not detected")
	}
	if IsInterrupted(errors.New("boom")) {
		t.Fatalf("plain error reported as interruption")
	}
}

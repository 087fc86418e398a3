package probe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"menuscrape/internal/menu"
)

// mapFetcher serves pages from a map; unknown URLs fail.
type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	if body, ok := m[url]; ok {
		return body, nil
	}
	return "", fmt.Errorf("no page for %s", url)
}

const base = "https://shop.test"

func product(name string) string {
	return `<html><body><div class="cmp-product-details-main">
<h1 class="cmp-product-details-main__heading-title">` + name + `</h1>
<div class="cmp-product-details-main__sub-heading">Вага: 117г</div>
<div class="cmp-nutrition-summary__heading-primary-item"><span class="value">300 ккал</span><span class="metric">Калорійність</span></div>
</div></body></html>`
}

func linkSite() mapFetcher {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, `<a class="cmp-category__item-link" href="/product/%d.html">%d</a>`, i, i)
	}
	return mapFetcher{
		base + "/menu":           b.String(),
		base + "/product/0.html": product("Біг Мак"),
		base + "/product/1.html": `<html><body><p>redesigned</p></body></html>`,
		// product 2 is missing and fails to fetch
	}
}

func TestProbe_LinkSample(t *testing.T) {
	t.Parallel()

	rep, err := Probe(context.Background(), linkSite(), Options{
		Profile:    menu.DefaultProfile(),
		ListingURL: base + "/menu",
	})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if len(rep.Links) != 5 {
		t.Fatalf("expected 5 links, got %d", len(rep.Links))
	}
	if len(rep.Pages) != DefaultSample {
		t.Fatalf("expected %d sampled pages, got %d", DefaultSample, len(rep.Pages))
	}
	for _, c := range rep.Containers {
		if c.Count != 0 {
			t.Fatalf("no containers expected on a link listing: %+v", c)
		}
	}

	first := rep.Pages[0]
	if !first.ReadyMarker || first.Fields["name"].Locator != 0 || first.Fields["portion"].Value != "117 г" {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if first.Nutrition.Calories != "300 ккал" || first.PanelRows != 1 {
		t.Fatalf("unexpected nutrition: %+v", first)
	}

	if rep.Pages[1].Error == "" || rep.Pages[1].Fields["name"].Locator != -1 {
		t.Fatalf("redesigned page should report a missing name: %+v", rep.Pages[1])
	}
	if rep.Pages[2].Error == "" || rep.Pages[2].URL != base+"/product/2.html" {
		t.Fatalf("fetch failure not recorded: %+v", rep.Pages[2])
	}

	if rep.Coverage["name"] != 1 || rep.Coverage["nutrition.calories"] != 1 {
		t.Fatalf("unexpected coverage: %v", rep.Coverage)
	}
	gaps := rep.Gaps()
	if len(gaps) == 0 || gaps[0] != "description" {
		t.Fatalf("unexpected gaps: %v", gaps)
	}

	var out bytes.Buffer
	rep.Text(&out)
	for _, want := range []string{"product links: 5", "coverage (3 pages)", "POPULATED", "nutrition.calories", "error:"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("text report missing %q:\n%s", want, out.String())
		}
	}
}

func TestProbe_Fragments(t *testing.T) {
	t.Parallel()

	site := mapFetcher{base + "/menu": `<html><body>
<div class="menu-item"><h3 class="item-name">Чізбургер</h3><span class="portion-size">118 г</span></div>
<div class="menu-item"><h3 class="item-name">Фіш</h3></div>
</body></html>`}

	rep, err := Probe(context.Background(), site, Options{Profile: menu.DefaultProfile(), ListingURL: base + "/menu", Sample: 5})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if rep.Containers[0].Count != 2 {
		t.Fatalf("unexpected containers: %+v", rep.Containers)
	}
	if len(rep.Pages) != 2 || rep.Pages[0].Fragment != 1 || rep.Pages[0].Fields["name"].Value != "Чізбургер" {
		t.Fatalf("unexpected pages: %+v", rep.Pages)
	}
	if rep.Coverage["portion"] != 1 {
		t.Fatalf("unexpected coverage: %v", rep.Coverage)
	}
}

func TestProbe_ListingFailure(t *testing.T) {
	t.Parallel()

	_, err := Probe(context.Background(), mapFetcher{}, Options{Profile: menu.DefaultProfile(), ListingURL: base + "/menu"})
	if err == nil || !strings.Contains(err.Error(), "probe listing") {
		t.Fatalf("err = %v", err)
	}
}

func TestProbe_NegativeSampleSkipsPages(t *testing.T) {
	t.Parallel()

	rep, err := Probe(context.Background(), linkSite(), Options{Profile: menu.DefaultProfile(), ListingURL: base + "/menu", Sample: -1})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(rep.Pages) != 0 || rep.Gaps() != nil {
		t.Fatalf("expected no pages: %+v", rep)
	}
}

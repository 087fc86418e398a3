package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"menuscrape/internal/records"
)

const productHTML = `<html><body><div class="cmp-product-details-main">
<h1 class="cmp-product-details-main__heading-title">Біг Мак&nbsp;</h1>
<div class="cmp-product-details-main__description">Два біфштекси</div>
<div class="cmp-product-details-main__sub-heading">Вага: 210г</div>
<div class="cmp-nutrition-summary__heading-primary-item"><span class="value">540 ккал (27%)</span><span class="metric">Калорійність</span></div>
<div class="cmp-nutrition-summary__heading-primary-item"><span class="value">27г</span><span class="metric">Жири</span></div>
</div></body></html>`

// TestRun_StdinProductRecord verifies the "stdin -> record" happy path.
//
// We test via run() (not main()) so the test is fast, deterministic,
// and does not require an OS-level subprocess.
func TestRun_StdinProductRecord(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(
		context.Background(),
		nil,
		strings.NewReader(productHTML),
		&stdout,
		&stderr,
		http.DefaultClient,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	var got records.ProductRecord
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, stdout.String())
	}
	if got.Name != "Біг Мак" || got.Portion != "210 г" {
		t.Fatalf("unexpected record: %#v", got)
	}
	if got.Nutrition.Calories != "540 ккал" || got.Nutrition.Fats != "27 г" {
		t.Fatalf("unexpected nutrition: %#v", got.Nutrition)
	}
}

// TestRun_NoNameFails verifies a page without a product name is an error.
func TestRun_NoNameFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	code := run(context.Background(), nil, strings.NewReader(`<p>nothing</p>`), &bytes.Buffer{}, &stderr, http.DefaultClient)
	if code != 1 {
		t.Fatalf("run returned %d; want 1", code)
	}
	if !strings.Contains(stderr.String(), "extract") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

// TestRun_DebugSelectorText verifies debug selector mode prints text (not JSON).
//
// This ensures we don't regress the debugging workflow, which is often
// used interactively when authoring profiles.
func TestRun_DebugSelectorText(t *testing.T) {
	t.Parallel()

	stdin := bytes.NewBufferString(`<div id="x">  A  </div><div id="x">B</div>`)
	var stdout, stderr bytes.Buffer

	code := run(
		context.Background(),
		[]string{"-selector", "div#x", "-text"},
		stdin,
		&stdout,
		&stderr,
		http.DefaultClient,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	// We expect two blocks with trimmed text, each separated by a blank line.
	out := stdout.String()
	if out != "A\n\nB\n\n" {
		t.Fatalf("unexpected debug output: %q", out)
	}
}

func TestRun_ResolveTrace(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-resolve", "portion"}, strings.NewReader(productHTML), &stdout, &stderr, http.DefaultClient)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "portion:\n") || !strings.Contains(out, " * [0]") {
		t.Fatalf("unexpected trace: %q", out)
	}

	stderr.Reset()
	code = run(context.Background(), []string{"-resolve", "colour"}, strings.NewReader(productHTML), &bytes.Buffer{}, &stderr, http.DefaultClient)
	if code != 2 || !strings.Contains(stderr.String(), "unknown field") {
		t.Fatalf("unknown field: code=%d stderr=%q", code, stderr.String())
	}
}

// TestRun_Links verifies -links uses URL input and prints same-host product links.
//
// We use httptest so the test does not hit real network.
func TestRun_Links(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`
			<a class="cmp-category__item-link" href="/ua/product/1.html">1</a>
			<a class="cmp-category__item-link" href="/ua/product/2.html">2</a>
			<a class="cmp-category__item-link" href="https://elsewhere.test/product/3.html">3</a>
			<a href="/ua/about.html">about</a>`))
	}))
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	client := &http.Client{Timeout: 2 * time.Second}

	code := run(
		context.Background(),
		[]string{"-url", srv.URL + "/menu.html", "-links"},
		bytes.NewBuffer(nil),
		&stdout,
		&stderr,
		client,
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	want := srv.URL + "/ua/product/1.html\n" + srv.URL + "/ua/product/2.html\n"
	if stdout.String() != want {
		t.Fatalf("unexpected links output:\nwant=%q\ngot=%q", want, stdout.String())
	}

	if code := run(context.Background(), []string{"-links"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, client); code != 2 {
		t.Fatalf("-links without base: code=%d, want 2", code)
	}
}

func TestRun_DirMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.html"), []byte(productHTML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-dir", dir}, nil, &stdout, &stderr, http.DefaultClient)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}
	var got records.Corpus
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not a json array: %v; out=%s", err, stdout.String())
	}
	if len(got) != 1 || got[0].Name != "Біг Мак" {
		t.Fatalf("unexpected records: %#v", got)
	}
}

func TestRun_BadProfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.json")
	if err := os.WriteFile(path, []byte(`{"nutrition":{"fallback":{"calories":[{"kind":"pattern","pattern":"("}]}}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-profile", path}, strings.NewReader(productHTML), &bytes.Buffer{}, &stderr, http.DefaultClient)
	if code != 2 || !strings.Contains(stderr.String(), "load profile") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}

// Command extract-html turns saved or fetched menu pages into product
// records and helps debug selector profiles.
//
// Usage (stdin, one product page):
//
//	cat product.html | extract-html
//
// Usage (fetch URL):
//
//	extract-html -url "https://www.mcdonalds.com/ua/uk-ua/product/200.html"
//
// Usage (directory mode, one record per file or fragment):
//
//	extract-html -dir "./pages" -profile profile.json
//
// List product links found on a listing page:
//
//	extract-html -url "https://www.mcdonalds.com/ua/uk-ua/eat/fullmenu.html" -links
//
// Debug (print outer HTML blocks):
//
//	cat page.html | extract-html -selector ".cmp-nutrition-summary"
//
// Debug (print text for selector matches):
//
//	cat page.html | extract-html -selector ".label-item" -text
//
// Debug (show which locator of a field chain wins):
//
//	cat page.html | extract-html -resolve portion
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/fetch"
	"menuscrape/internal/menu"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract-html", flag.ContinueOnError)
	fs.SetOutput(stderr)

	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches (not JSON)")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	resolveField := fs.String("resolve", "", "Debug: trace the locator chain of a field (name, description, portion)")
	profilePath := fs.String("profile", "", "Selector profile JSON (default: built-in profile)")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	baseURL := fs.String("base", "", "Base URL for resolving -links when reading stdin")
	listLinks := fs.Bool("links", false, "Print product links discovered on a listing page")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout for -url fetch")
	dirFlag := fs.String("dir", "", "Optional: directory containing HTML files to parse")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	fetcher := fetch.New(fetch.Options{
		Client:  httpClient,
		Timeout: *timeout,
		Policy:  fetch.DefaultPolicy(),
		Logger:  slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	input := fetch.Source{URL: *urlFlag, Stdin: stdin}

	// Debug selector mode needs HTML input (stdin or url) but NOT a profile.
	if *debugSelector != "" {
		html, err := fetcher.Read(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}

		if err := extracthtml.DebugPrintSelector(stdout, html, *debugSelector, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}

	profile := menu.DefaultProfile()
	if *profilePath != "" {
		var err error
		if profile, err = menu.LoadProfile(*profilePath); err != nil {
			fmt.Fprintf(stderr, "load profile: %v\n", err)
			return 2
		}
	}

	if *resolveField != "" {
		chains := map[string]extracthtml.LocatorChain{
			"name":        profile.Fields.Name,
			"description": profile.Fields.Description,
			"portion":     profile.Fields.Portion,
		}
		for k, c := range profile.Nutrition.Fallback {
			chains["nutrition."+k] = c
		}
		chain, ok := chains[*resolveField]
		if !ok {
			fmt.Fprintf(stderr, "unknown field %q (want one of %s)\n", *resolveField, strings.Join(sortedKeys(chains), ", "))
			return 2
		}
		html, err := fetcher.Read(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if err := extracthtml.DebugResolve(stdout, html, *resolveField, chain); err != nil {
			fmt.Fprintf(stderr, "resolve: %v\n", err)
			return 1
		}
		return 0
	}

	if *listLinks {
		base := *baseURL
		if base == "" {
			base = *urlFlag
		}
		if base == "" {
			fmt.Fprintf(stderr, "-links requires -url or -base\n")
			return 2
		}
		html, err := fetcher.Read(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		for _, link := range extracthtml.DiscoverLinks(html, base, profile.ProductLinks) {
			fmt.Fprintln(stdout, link)
		}
		return 0
	}

	ex, err := menu.New(menu.Options{
		Profile: profile,
		Fetcher: fetcher,
		Logger:  slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		fmt.Fprintf(stderr, "init extractor: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	// Directory mode: stream output as a single JSON array.
	if *dirFlag != "" {
		if err := ex.StreamFromDir(stdout, *dirFlag, enc); err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return 1
		}
		return 0
	}

	// Single input mode: stdin OR -url
	html, err := fetcher.Read(ctx, input)
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}

	rec, err := ex.ExtractProduct(html)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 1
	}
	if err := enc.Encode(rec); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

func sortedKeys(m map[string]extracthtml.LocatorChain) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

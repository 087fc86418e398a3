// Command probe checks a selector profile against a live menu before a full
// scrape.
//
// It fetches the listing page, counts matches for every item container
// selector, discovers product links, and runs the field and nutrition
// chains against a bounded sample of items. Output is a text report by
// default or the full report as JSON with -json.
//
// With -strict the command exits 1 when a field was never populated on any
// sampled item, which makes it usable as a CI smoke check for site
// redesigns.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"menuscrape/internal/fetch"
	"menuscrape/internal/menu"
	"menuscrape/internal/probe"
)

func main() {
	_ = godotenv.Load()

	var (
		// flagURL is the listing page to probe.
		flagURL = flag.String("url", "", "Listing page URL")

		// flagProfile points at a selector profile JSON laid over the
		// built-in profile.
		flagProfile = flag.String("profile", "", "Selector profile JSON (default: built-in profile)")

		// flagSample bounds the number of fragments and product pages checked.
		flagSample = flag.Int("sample", probe.DefaultSample, "Number of items to sample (negative: listing only)")

		// flagJSON prints the full report as JSON instead of text.
		flagJSON = flag.Bool("json", false, "Print the report as JSON")

		// flagStrict fails the run when a field is empty on every sampled item.
		flagStrict = flag.Bool("strict", false, "Exit 1 when any field is never populated")

		flagTimeout = flag.Duration("timeout", 60*time.Second, "Overall probe timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*flagURL) == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}

	profile := menu.DefaultProfile()
	if *flagProfile != "" {
		var err error
		if profile, err = menu.LoadProfile(*flagProfile); err != nil {
			fmt.Fprintf(os.Stderr, "load profile: %v\n", err)
			os.Exit(2)
		}
	}

	// Bound the probe run. Probing should be fast and predictable; if the
	// site is slow or unreachable, fail quickly rather than hang.
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	fetcher := fetch.New(fetch.Options{Policy: fetch.DefaultPolicy()})
	rep, err := probe.Probe(ctx, fetcher, probe.Options{
		Profile:    profile,
		ListingURL: *flagURL,
		Sample:     *flagSample,
	})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	if *flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatalf("encode report: %v", err)
		}
	} else {
		rep.Text(os.Stdout)
	}

	if gaps := rep.Gaps(); *flagStrict && len(gaps) > 0 {
		fmt.Fprintf(os.Stderr, "never populated: %s\n", strings.Join(gaps, ", "))
		os.Exit(1)
	}
}

// Command snapshot downloads menu pages into a directory so they can be
// re-extracted offline with extract-html -dir.
//
// URLs come from a file (-i, one per line) and/or from the product links of
// a listing page (-listing). Each page is written atomically to
// <out>/<sha1(url)>.html and one JSON line per URL is printed to stdout.
package main

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/fetch"
	"menuscrape/internal/menu"
	"menuscrape/internal/metrics"
	"menuscrape/internal/metrics/datadog"
)

// logRecord is emitted as JSONL to stdout for each URL.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type logRecord struct {
	Timestamp  string `json:"ts"`
	URL        string `json:"url"`
	StatusCode int    `json:"http_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	DownloadSz int64  `json:"size_bytes"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error,omitempty"`
}

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	HTTPClient     *http.Client
	Sleeper        fetch.Sleeper
	Now            func() time.Time
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	URLFile     string
	ListingURL  string
	Workers     int
	Timeout     time.Duration
	OutDir      string
	JobName     string
	Attempts    int
	BackoffUnit time.Duration
	Profile     string
	Metrics     string
	DDTagsCSV   string
	FlushEvery  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	os.Exit(code)
}

// run executes the snapshot command and returns an exit code.
//
// Exit codes:
//   - 0: success (404 pages are logged and skipped).
//   - 1: at least one URL failed.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintf(d.Stderr, "failed to create output directory: %v\n", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(d.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	rec := metrics.NewRecorder(nil, cfg.JobName)
	if cfg.Metrics == "datadog" {
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "tool:snapshot")
		backend, err := d.BackendFactory(ctx, cfg.JobName, tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		defer func() { _ = backend.Close() }()
		rec = metrics.NewRecorder(backend, cfg.JobName)
	}

	policy := fetch.DefaultPolicy()
	policy.Attempts = cfg.Attempts
	policy.Unit = cfg.BackoffUnit
	policy.Sleeper = d.Sleeper
	fetcher := fetch.New(fetch.Options{
		Client:  d.HTTPClient,
		Policy:  policy,
		Timeout: cfg.Timeout,
		Logger:  logger,
		Metrics: rec,
	})

	urls, err := collectURLs(ctx, cfg, fetcher)
	if err != nil {
		fmt.Fprintf(d.Stderr, "error collecting urls: %v\n", err)
		return 2
	}
	if len(urls) == 0 {
		fmt.Fprintln(d.Stderr, "no URLs to snapshot")
		return 2
	}

	jobs := make(chan string)
	logCh := make(chan logRecord, 512)
	var failed atomic.Int64

	// Logger goroutine.
	var logWG sync.WaitGroup
	logWG.Add(1)
	go func() {
		defer logWG.Done()
		writeJSONLines(d.Stdout, logCh)
	}()

	// Workers.
	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for u := range jobs {
				r := processURL(ctx, fetcher, u, cfg.OutDir, d.Now)
				if r.Error != "" && r.StatusCode != http.StatusNotFound {
					failed.Add(1)
				}
				logCh <- r
			}
		}()
	}

	// Producer.
	go func() {
		defer close(jobs)
		for _, u := range urls {
			select {
			case <-ctx.Done():
				return
			case jobs <- u:
			}
		}
	}()

	wg.Wait()
	close(logCh)
	logWG.Wait()

	_ = rec.Flush()

	if failed.Load() > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid/missing required flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	def := fetch.DefaultPolicy()
	var cfg runConfig
	fs.StringVar(&cfg.URLFile, "i", "", "Path to file containing URLs (one per line)")
	fs.StringVar(&cfg.ListingURL, "listing", "", "Listing page whose product links are downloaded (the listing itself is saved too)")
	fs.StringVar(&cfg.Profile, "profile", "", "Selector profile JSON used to find product links")
	fs.IntVar(&cfg.Workers, "n", 4, "Number of concurrent workers")
	fs.DurationVar(&cfg.Timeout, "t", 30*time.Second, "HTTP timeout per request (e.g. 30s)")
	fs.StringVar(&cfg.OutDir, "o", "pages", "Directory to save pages")
	fs.StringVar(&cfg.JobName, "name", "menu_snapshot", "Logical job name used in metrics tags")
	fs.IntVar(&cfg.Attempts, "attempts", def.Attempts, "Max attempts per URL (including first attempt)")
	fs.DurationVar(&cfg.BackoffUnit, "backoff_unit", def.Unit, "Backoff unit; retry n waits 2^n units, HTTP 429 waits the cooldown")
	fs.StringVar(&cfg.Metrics, "metrics", "none", "Metrics backend: none or datadog")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:menuscrape)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", 1*time.Minute, "Datadog flush interval (default 1m)")

	if err := fs.Parse(args); err != nil {
		// When -h / -help is passed, flag.Parse returns flag.ErrHelp.
		// Return the captured usage text so caller prints it.
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.URLFile == "" && cfg.ListingURL == "" {
		return runConfig{}, errors.New("missing -i <url_file> or -listing <url>")
	}
	if cfg.Workers <= 0 {
		return runConfig{}, errors.New("-n must be > 0")
	}
	if cfg.Attempts <= 0 {
		return runConfig{}, errors.New("-attempts must be > 0")
	}
	if cfg.BackoffUnit <= 0 {
		return runConfig{}, errors.New("-backoff_unit must be > 0")
	}
	if cfg.Metrics != "none" && cfg.Metrics != "datadog" {
		return runConfig{}, fmt.Errorf("-metrics must be none or datadog, got %q", cfg.Metrics)
	}
	return cfg, nil
}

// collectURLs returns the URLs from the URL file followed by the listing
// page and its product links, without duplicates.
func collectURLs(ctx context.Context, cfg runConfig, f *fetch.Fetcher) ([]string, error) {
	var urls []string
	if cfg.URLFile != "" {
		fromFile, err := readURLs(cfg.URLFile)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}

	if cfg.ListingURL != "" {
		profile := menu.DefaultProfile()
		if cfg.Profile != "" {
			var err error
			if profile, err = menu.LoadProfile(cfg.Profile); err != nil {
				return nil, err
			}
		}
		body, err := f.Fetch(ctx, cfg.ListingURL)
		if err != nil {
			return nil, fmt.Errorf("listing: %w", err)
		}
		urls = append(urls, cfg.ListingURL)
		urls = append(urls, extracthtml.DiscoverLinks(body, cfg.ListingURL, profile.ProductLinks)...)
	}

	seen := make(map[string]struct{}, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

func processURL(ctx context.Context, f *fetch.Fetcher, rawURL, outDir string, now func() time.Time) logRecord {
	start := now()
	rec := logRecord{
		Timestamp:  start.UTC().Format("2006-01-02T15:04:05.000Z"),
		URL:        rawURL,
		DownloadSz: -1,
	}

	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) {
			rec.StatusCode = se.Code
		}
		rec.Error = err.Error()
		rec.DurationMs = now().Sub(start).Milliseconds()
		return rec
	}
	rec.StatusCode = http.StatusOK

	outputPath := filepath.Join(outDir, hashString(rawURL)+".html")
	n, werr := writeBodyToFile(outputPath, strings.NewReader(body))
	rec.DownloadSz = n
	if werr != nil {
		rec.Error = werr.Error()
	} else {
		rec.File = outputPath
	}
	rec.DurationMs = now().Sub(start).Milliseconds()
	return rec
}

// writeBodyToFile writes r to outputPath atomically.
//
// Behavior:
//   - Writes to a temp file in the same directory.
//   - Renames into place on success.
//   - On failure, attempts to remove the temp file.
//
// Returns the number of bytes written.
func writeBodyToFile(outputPath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()

	if copyErr != nil {
		_ = os.Remove(tmpName)
		return n, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return n, closeErr
	}
	if err := os.Rename(tmpName, outputPath); err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	return n, nil
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func writeJSONLines(w io.Writer, in <-chan logRecord) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for rec := range in {
		_ = enc.Encode(rec)
	}
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Command menuscrape scrapes a restaurant menu into a JSON corpus,
// optionally reconciles it into a baseline file and mirrors it into SQL.
package main

import (
	"context"
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
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"menuscrape/internal/config"
	"menuscrape/internal/corpus"
	"menuscrape/internal/metrics"
	"menuscrape/internal/metrics/datadog"
	"menuscrape/internal/pipeline"

	// register all backends with the storage factory.
	_ "menuscrape/internal/storage/all"
)

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

	// FallbackDir receives the corpus when it cannot be written to the
	// configured path; empty means os.TempDir().
	FallbackDir string
}

// cliFlags are overrides applied on top of the loaded configuration.
type cliFlags struct {
	ConfigPath string
	URL        string
	Mode       string
	Profile    string
	Out        string
	Baseline   string
	AppendNew  bool
	Workers    int
	Render     string
	Storage    string
	DSN        string
	Metrics    string
	Validate   bool
	Verbose    bool

	set map[string]bool
}

func main() {
	_ = godotenv.Load()

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

// run executes one scrape and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the run failed or was interrupted (partial results are still saved).
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	fl, err := parseFlags(args, d.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	level := slog.LevelInfo
	if fl.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(d.Stderr, level)

	cfg, err := config.Load(fl.ConfigPath)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	fl.apply(cfg)

	hasError := false
	for _, iss := range config.Validate(cfg) {
		fmt.Fprintln(d.Stderr, iss.String())
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		return 2
	}
	if fl.Validate {
		fmt.Fprintln(d.Stdout, "configuration is valid")
		return 0
	}

	rec, closeMetrics, err := initMetrics(ctx, cfg.Metrics, d, logger)
	if err != nil {
		fmt.Fprintf(d.Stderr, "metrics: %v\n", err)
		return 2
	}
	defer closeMetrics()

	start := time.Now()
	rep, err := pipeline.Run(ctx, cfg, pipeline.Deps{
		Logger:     logger,
		Metrics:    rec,
		HTTPClient: d.HTTPClient,
	})
	logger.Info("run finished",
		"discovered", rep.Summary.Discovered,
		"extracted", rep.Summary.Extracted,
		"skipped", rep.Summary.Skipped,
		"cancelled", rep.Summary.Cancelled,
		"duplicates", rep.Summary.Duplicates,
		"elapsed", time.Since(start).Truncate(time.Millisecond),
	)
	if err != nil {
		var pe *corpus.PersistError
		if errors.As(err, &pe) && len(rep.Corpus) > 0 {
			saveFallback(d.FallbackDir, rep, logger)
		}
		if pipeline.IsInterrupted(err) {
			logger.Warn("run interrupted", "saved", rep.Records, "err", err)
		} else {
			logger.Error("run failed", "err", err)
		}
		return 1
	}

	fmt.Fprintf(d.Stdout, "%d products written to %s\n", rep.Records, rep.CorpusPath)
	return 0
}

// saveFallback writes the corpus next to the system temp files when the
// configured path could not be written.
func saveFallback(dir string, rep pipeline.Report, logger *slog.Logger) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := fallbackPath(dir, rep.CorpusPath)
	if err := corpus.Save(path, rep.Corpus); err != nil {
		logger.Error("corpus lost", "records", len(rep.Corpus), "err", err)
		return
	}
	logger.Warn("corpus saved to fallback file", "path", path, "records", len(rep.Corpus))
}

// fallbackPath returns <dir>/<corpus base name without extension>.partial.json.
func fallbackPath(dir, corpusPath string) string {
	base := strings.TrimSuffix(filepath.Base(corpusPath), filepath.Ext(corpusPath))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "menu_data"
	}
	return filepath.Join(dir, base+".partial.json")
}

// newLogger colours output only when w is a terminal.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}

// parseFlags parses command arguments.
//
// It does not exit the process; the caller decides the exit code.
func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	fs := flag.NewFlagSet("menuscrape", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var fl cliFlags
	fs.StringVar(&fl.ConfigPath, "config", "", "config file (yaml/json); default searches ./menuscrape.* and ./configs")
	fs.StringVar(&fl.URL, "url", "", "menu listing URL")
	fs.StringVar(&fl.Mode, "mode", "", "discovery mode: auto, fragments or links")
	fs.StringVar(&fl.Profile, "profile", "", "selector profile JSON")
	fs.StringVar(&fl.Out, "out", "", "corpus output path")
	fs.StringVar(&fl.Baseline, "baseline", "", "baseline corpus to reconcile into")
	fs.BoolVar(&fl.AppendNew, "append-new", false, "append products missing from the baseline")
	fs.IntVar(&fl.Workers, "workers", 0, "concurrent product pages")
	fs.StringVar(&fl.Render, "render", "", "renderer: static or chrome")
	fs.StringVar(&fl.Storage, "storage", "", "mirror the corpus into sqlite, postgres or mssql")
	fs.StringVar(&fl.DSN, "dsn", "", "storage DSN")
	fs.StringVar(&fl.Metrics, "metrics-backend", "", "metrics backend: none or datadog")
	fs.BoolVar(&fl.Validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&fl.Verbose, "v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if fs.NArg() > 0 {
		return cliFlags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	fl.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { fl.set[f.Name] = true })
	return fl, nil
}

// apply overrides cfg with every flag given on the command line.
func (fl cliFlags) apply(cfg *config.Config) {
	if fl.set["url"] {
		cfg.Source.ListingURL = fl.URL
	}
	if fl.set["mode"] {
		cfg.Source.Mode = fl.Mode
	}
	if fl.set["profile"] {
		cfg.Source.Profile = fl.Profile
	}
	if fl.set["out"] {
		cfg.Output.CorpusPath = fl.Out
	}
	if fl.set["baseline"] {
		cfg.Output.BaselinePath = fl.Baseline
	}
	if fl.set["append-new"] {
		cfg.Output.AppendNew = fl.AppendNew
	}
	if fl.set["workers"] {
		cfg.Runtime.Workers = fl.Workers
	}
	if fl.set["render"] {
		cfg.Render.Kind = fl.Render
	}
	if fl.set["storage"] {
		cfg.Storage.Kind = fl.Storage
	}
	if fl.set["dsn"] {
		cfg.Storage.DSN = fl.DSN
	}
	if fl.set["metrics-backend"] {
		cfg.Metrics.Backend = fl.Metrics
	}
}

// initMetrics builds the recorder for cfg.Backend and returns a func that
// flushes and closes it.
func initMetrics(ctx context.Context, cfg config.MetricsConfig, d deps, logger *slog.Logger) (*metrics.Recorder, func(), error) {
	switch cfg.Backend {
	case "", "none":
		logger.Debug("metrics disabled")
		return metrics.NewRecorder(nil, cfg.JobName), func() {}, nil

	case "datadog":
		if d.BackendFactory == nil {
			return nil, nil, errors.New("datadog backend factory is nil")
		}
		tags := append(datadog.ParseTagsCSV(cfg.Tags), "tool:menuscrape")
		b, err := d.BackendFactory(ctx, cfg.JobName, tags, cfg.FlushEvery)
		if err != nil {
			return nil, nil, fmt.Errorf("init datadog backend: %w", err)
		}
		logger.Info("metrics enabled", "backend", cfg.Backend, "job", cfg.JobName, "tags", tags)
		rec := metrics.NewRecorder(b, cfg.JobName)
		return rec, func() {
			// Close stops the flush loop and performs a final flush.
			if err := b.Close(); err != nil {
				logger.Warn("metrics close failed", "err", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown metrics backend %q", cfg.Backend)
	}
}

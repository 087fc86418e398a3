// Package pipeline wires configuration into a full scrape run: extract the
// menu, persist the corpus, reconcile it into the baseline and mirror the
// result into SQL storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"menuscrape/internal/config"
	"menuscrape/internal/corpus"
	"menuscrape/internal/fetch"
	"menuscrape/internal/menu"
	"menuscrape/internal/metrics"
	"menuscrape/internal/records"
	"menuscrape/internal/reconcile"
	"menuscrape/internal/render"
	"menuscrape/internal/storage"
)

// Deps are the process-level collaborators of a run.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder

	// HTTPClient overrides the fetcher's client; nil builds the default.
	HTTPClient *http.Client
	// Sleeper overrides the retry sleeper; nil sleeps for real.
	Sleeper fetch.Sleeper
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Report summarises a run.
type Report struct {
	Summary    menu.Summary     `json:"summary"`
	CorpusPath string           `json:"corpus_path"`
	Records    int              `json:"records"`
	Baseline   *BaselineOutcome `json:"baseline,omitempty"`
	Mirrored   int64            `json:"mirrored,omitempty"`

	// Corpus holds the extracted records even when persisting them failed.
	Corpus records.Corpus `json:"-"`
}

// BaselineOutcome describes what happened to the baseline file.
type BaselineOutcome struct {
	Path   string          `json:"path"`
	Seeded bool            `json:"seeded"`
	Stats  reconcile.Stats `json:"stats"`
}

// NewFetcher builds the HTTP fetcher described by cfg.
func NewFetcher(cfg *config.Config, deps Deps) *fetch.Fetcher {
	policy := cfg.Fetch.FetchPolicy()
	if deps.Sleeper != nil {
		policy.Sleeper = deps.Sleeper
	}
	return fetch.New(fetch.Options{
		Client:            deps.HTTPClient,
		Policy:            policy,
		UserAgent:         cfg.Fetch.UserAgent,
		Timeout:           cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
		Logger:            deps.logger(),
		Metrics:           deps.Metrics,
	})
}

// LoadProfile returns the configured selector profile with the configured
// listing URL applied.
func LoadProfile(cfg *config.Config) (menu.Profile, error) {
	p := menu.DefaultProfile()
	if cfg.Source.Profile != "" {
		var err error
		if p, err = menu.LoadProfile(cfg.Source.Profile); err != nil {
			return menu.Profile{}, err
		}
	}
	if cfg.Source.ListingURL != "" {
		p.ListingURL = cfg.Source.ListingURL
	}
	return p, nil
}

// NewSession returns the renderer session for cfg.Render.Kind and a func
// that releases it. For "static" the session is nil and the extractor
// creates static renderers itself.
func NewSession(ctx context.Context, cfg *config.Config, f *fetch.Fetcher, deps Deps) (*render.Session, func(), error) {
	if cfg.Render.Kind != "chrome" {
		return nil, func() {}, nil
	}

	b, err := render.NewBrowser(ctx, render.ChromeOptions{
		Headless:  cfg.Render.Headless,
		UserAgent: cfg.Fetch.UserAgent,
		Policy:    f.Policy(),
		Logger:    deps.logger(),
	})
	if err != nil {
		return nil, func() {}, err
	}

	workers := max(cfg.Runtime.Workers, 1)
	tabs := make([]render.Renderer, 0, workers)
	for i := 0; i < workers; i++ {
		tab, err := b.NewTab()
		if err != nil {
			b.Close()
			return nil, func() {}, err
		}
		tabs = append(tabs, tab)
	}
	return render.NewSession(tabs...), b.Close, nil
}

// NewExtractor builds a menu extractor from cfg.
func NewExtractor(ctx context.Context, cfg *config.Config, deps Deps) (*menu.Extractor, func(), error) {
	profile, err := LoadProfile(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	mode, err := menu.ParseMode(cfg.Source.Mode)
	if err != nil {
		return nil, func() {}, err
	}

	f := NewFetcher(cfg, deps)
	session, closeSession, err := NewSession(ctx, cfg, f, deps)
	if err != nil {
		return nil, func() {}, err
	}

	ex, err := menu.New(menu.Options{
		Profile:     profile,
		Fetcher:     f,
		Session:     session,
		Workers:     cfg.Runtime.Workers,
		Mode:        mode,
		WaitTimeout: cfg.Render.WaitTimeout,
		Logger:      deps.logger(),
		Metrics:     deps.Metrics,
	})
	if err != nil {
		closeSession()
		return nil, func() {}, err
	}
	return ex, closeSession, nil
}

// mirrorGrace bounds the mirror of a partial corpus after an interrupt.
const mirrorGrace = 30 * time.Second

// Run performs one scrape and persists its result.
//
// When extraction is interrupted the partial corpus is still persisted (and
// mirrored) and the interruption error is returned along with the report.
// Report.Corpus carries the records even when persisting them fails.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (Report, error) {
	log := deps.logger()

	ex, closeSession, err := NewExtractor(ctx, cfg, deps)
	if err != nil {
		return Report{}, err
	}
	defer closeSession()

	res, runErr := ex.ExtractMenu(ctx, cfg.Source.ListingURL)
	rep := Report{
		Summary:    res.Summary,
		CorpusPath: cfg.Output.CorpusPath,
		Records:    len(res.Records),
		Corpus:     res.Records,
	}
	if len(res.Records) == 0 {
		if runErr == nil {
			runErr = menu.ErrNoneExtracted
		}
		return rep, runErr
	}

	if err := step(deps.Metrics, "persist", func() error {
		return corpus.Save(cfg.Output.CorpusPath, res.Records)
	}); err != nil {
		return rep, err
	}
	log.Info("corpus saved", "path", cfg.Output.CorpusPath, "records", len(res.Records))

	final := res.Records
	if cfg.Output.BaselinePath != "" {
		var outcome *BaselineOutcome
		err := step(deps.Metrics, "reconcile", func() error {
			var err error
			final, outcome, err = ReconcileFile(cfg.Output.BaselinePath, res.Records, reconcile.Options{AppendNew: cfg.Output.AppendNew})
			return err
		})
		if err != nil {
			return rep, err
		}
		rep.Baseline = outcome
		log.Info("baseline reconciled",
			"path", outcome.Path,
			"seeded", outcome.Seeded,
			"updated", outcome.Stats.Updated,
			"dropped", outcome.Stats.Dropped,
			"appended", outcome.Stats.Appended,
		)
	}

	if cfg.Storage.Kind != "" {
		mirrorCtx := ctx
		if IsInterrupted(runErr) {
			c, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorGrace)
			defer cancel()
			mirrorCtx = c
		}
		err := step(deps.Metrics, "mirror", func() error {
			var err error
			rep.Mirrored, err = Mirror(mirrorCtx, cfg.Storage, final)
			return err
		})
		if err != nil {
			return rep, err
		}
		log.Info("corpus mirrored", "kind", cfg.Storage.Kind, "rows", rep.Mirrored)
	}

	return rep, runErr
}

// ReconcileFile merges fresh into the baseline file at path and writes the
// result back. A missing baseline is seeded with fresh.
func ReconcileFile(path string, fresh records.Corpus, opts reconcile.Options) (records.Corpus, *BaselineOutcome, error) {
	outcome := &BaselineOutcome{Path: path}

	if !corpus.Exists(path) {
		outcome.Seeded = true
		outcome.Stats.Appended = len(fresh)
		return fresh, outcome, corpus.Save(path, fresh)
	}

	base, err := corpus.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load baseline: %w", err)
	}
	merged, st, err := reconcile.Merge(base, fresh, opts)
	if err != nil {
		return nil, nil, err
	}
	outcome.Stats = st
	if err := corpus.Save(path, merged); err != nil {
		return nil, nil, err
	}
	return merged, outcome, nil
}

// Mirror replaces the corpus stored in the configured repository with c.
func Mirror(ctx context.Context, cfg config.StorageConfig, c records.Corpus) (int64, error) {
	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer repo.Close()
	return repo.ReplaceAll(ctx, c)
}

// OpenRepository opens the configured repository and ensures its schema.
// Backends must be registered (import menuscrape/internal/storage/all).
func OpenRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, error) {
	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Kind, DSN: cfg.DSN, Table: cfg.Table})
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func step(rec *metrics.Recorder, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	rec.RecordStep(name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// IsInterrupted reports whether err comes from cancellation or a deadline.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Command menu-api serves a scraped menu corpus over HTTP.
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
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"menuscrape/internal/api"
	"menuscrape/internal/config"
	"menuscrape/internal/corpus"
	"menuscrape/internal/pipeline"

	// register all backends with the storage factory.
	_ "menuscrape/internal/storage/all"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// run serves until ctx ends. It returns 2 on configuration errors and 1 when
// the server fails.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("menu-api", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "config file")
	port := fs.String("port", "", "listen port (overrides api.port)")
	source := fs.String("source", "", "corpus source: file or storage (overrides api.source)")
	corpusPath := fs.String("corpus", "", "corpus file (overrides api.corpus_path)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if *port != "" {
		cfg.API.Port = *port
	}
	if *source != "" {
		cfg.API.Source = *source
	}
	if *corpusPath != "" {
		cfg.API.CorpusPath = *corpusPath
	}

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "load catalog: %v\n", err)
		return 2
	}
	logger.Info("catalog loaded", "source", cfg.API.Source, "products", catalog.Len())

	router := api.SetupRouter(cfg.API.Environment, api.NewHandler(catalog), logger)
	srv := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "environment", cfg.API.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
		return 1
	}
	logger.Info("server stopped")
	return 0
}

// loadCatalog reads the corpus from the file or the SQL mirror named by
// cfg.API.Source.
func loadCatalog(ctx context.Context, cfg *config.Config) (*api.Catalog, error) {
	switch cfg.API.Source {
	case "", "file":
		c, err := corpus.Load(cfg.API.CorpusPath)
		if err != nil {
			return nil, err
		}
		return api.NewCatalog(c), nil

	case "storage":
		repo, err := pipeline.OpenRepository(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		defer repo.Close()
		c, err := repo.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
		return api.NewCatalog(c), nil

	default:
		return nil, fmt.Errorf("unknown source %q (want file or storage)", cfg.API.Source)
	}
}

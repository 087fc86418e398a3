// Command reconcile merges a freshly scraped corpus into a baseline corpus
// file: matched products take every non-empty fresh value, unmatched fresh
// products are dropped unless -append-new is set.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"menuscrape/internal/config"
	"menuscrape/internal/corpus"
	"menuscrape/internal/pipeline"
	"menuscrape/internal/records"
	"menuscrape/internal/reconcile"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns 0 on success, 1 when reading or writing a corpus fails and 2
// on usage errors.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "config file; supplies output.baseline_path and output.append_new")
	baseline := fs.String("baseline", "", "baseline corpus (created from -fresh when missing)")
	fresh := fs.String("fresh", "", "freshly scraped corpus")
	appendNew := fs.Bool("append-new", false, "append fresh products missing from the baseline")
	dryRun := fs.Bool("dry-run", false, "print stats without writing the baseline")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	opts := reconcile.Options{AppendNew: cfg.Output.AppendNew}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "append-new" {
			opts.AppendNew = *appendNew
		}
	})
	if *baseline == "" {
		*baseline = cfg.Output.BaselinePath
	}
	if *fresh == "" {
		*fresh = cfg.Output.CorpusPath
	}
	if *baseline == "" || *fresh == "" {
		fmt.Fprintln(stderr, "usage: reconcile -baseline base.json -fresh fresh.json [-append-new]")
		return 2
	}

	incoming, err := corpus.Load(*fresh)
	if err != nil {
		fmt.Fprintf(stderr, "load fresh corpus: %v\n", err)
		return 1
	}

	var outcome *pipeline.BaselineOutcome
	if *dryRun {
		outcome, err = preview(*baseline, incoming, opts)
	} else {
		_, outcome, err = pipeline.ReconcileFile(*baseline, incoming, opts)
	}
	if err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		fmt.Fprintf(stderr, "write stats: %v\n", err)
		return 1
	}
	return 0
}

// preview computes the outcome of reconciling without touching the baseline.
func preview(path string, incoming records.Corpus, opts reconcile.Options) (*pipeline.BaselineOutcome, error) {
	outcome := &pipeline.BaselineOutcome{Path: path}
	if !corpus.Exists(path) {
		outcome.Seeded = true
		outcome.Stats.Appended = len(incoming)
		return outcome, nil
	}
	base, err := corpus.Load(path)
	if err != nil {
		return nil, err
	}
	_, st, err := reconcile.Merge(base, incoming, opts)
	if err != nil {
		return nil, err
	}
	outcome.Stats = st
	return outcome, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"sgmacro/internal/catalog"
	"sgmacro/internal/intent"
	"sgmacro/internal/logger"
	"sgmacro/internal/report"
	"sgmacro/internal/resolver"
	"sgmacro/internal/runner"
	"sgmacro/internal/series"
	"sgmacro/internal/store"
	"sgmacro/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	outPath := fs.String("out", "public/data/macro.json", "macro output path")
	statusPath := fs.String("status", "public/data/status.json", "status output path")
	intentsPath := fs.String("config", "", "intents YAML file (empty uses built-in set)")
	dbPath := fs.String("db", "", "sqlite archive path (empty disables archiving)")
	timeoutSec := fs.Int("timeout", 30, "per-request timeout in seconds")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	verbose := fs.Bool("verbose", false, "print the per-series status table")
	fs.Parse(args)

	if err := runFetch(*outPath, *statusPath, *intentsPath, *dbPath, *timeoutSec, *logLevel, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "fetcher run failed:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fetcher run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -out        macro output path (default: public/data/macro.json)")
	fmt.Fprintln(os.Stderr, "  -status     status output path (default: public/data/status.json)")
	fmt.Fprintln(os.Stderr, "  -config     intents YAML file (default: built-in set)")
	fmt.Fprintln(os.Stderr, "  -db         sqlite archive path (default: disabled)")
	fmt.Fprintln(os.Stderr, "  -timeout    per-request timeout in seconds (default: 30)")
	fmt.Fprintln(os.Stderr, "  -log-level  log level (default: info)")
	fmt.Fprintln(os.Stderr, "  -verbose    print the per-series status table")
}

func runFetch(outPath, statusPath, intentsPath, dbPath string, timeoutSec int, logLevel string, verbose bool) error {
	log := logger.New(logLevel)

	intents := intent.Defaults()
	if strings.TrimSpace(intentsPath) != "" {
		loaded, err := intent.Load(intentsPath)
		if err != nil {
			return err
		}
		intents = loaded
	}

	archive, err := openArchive(dbPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	cfg := catalog.ConfigFromEnv()
	if timeoutSec > 0 {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	client := catalog.NewWithConfig(cfg)

	r := runner.New(
		resolver.New(client),
		series.New(cfg.Timeout),
		archive,
		log,
		client.SearchEndpoint(),
	)

	log.Info("starting macro fetch", "intents", len(intents))
	macro, status := r.Run(context.Background(), intents)

	if err := runner.WriteDocuments(outPath, statusPath, macro, status); err != nil {
		return err
	}

	if verbose {
		fmt.Fprint(os.Stderr, report.StatusTable(status))
	}
	log.Info("run complete", "ok", status.OK, "series", len(macro.Series), "errors", len(status.Errors))
	fmt.Printf("wrote macro data to %s and status to %s\n", outPath, statusPath)
	return nil
}

func openArchive(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/ingest/alpha"
	"github.com/claude/liftlog/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	exportPath := flag.String("path", "", "path to an Alpha Progression CSV export (required)")
	login := flag.String("user", "local", "login of the user the sessions belong to")
	dryRun := flag.Bool("dry-run", false, "parse and report counts without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: liftlog-import -config config.yaml -path export.csv [-user login] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *dryRun {
		if err := dryRunReport(*exportPath, log); err != nil {
			log.Error("dry run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closeStore, err := storage.Open(ctx, cfg.Database, "migrations")
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	log.Info("database connected", "driver", cfg.Database.Driver)

	uid, err := store.GetOrCreateUser(ctx, strings.ToLower(*login), *login)
	if err != nil {
		log.Error("failed to resolve user", "login", *login, "error", err)
		os.Exit(1)
	}

	result, err := runImport(ctx, store, uid, *exportPath, log)
	if err != nil {
		log.Error("import failed", "error", err)
		os.Exit(1)
	}
	printResult(log, result)
	log.Info("import complete")
}

// runImport ingests one export for uid and records it in the import log.
func runImport(ctx context.Context, store storage.Backend, uid int, path string, log *slog.Logger) (*ingest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	catalog, err := store.ListCatalog(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	bodyweight, err := store.Bodyweight(ctx, uid)
	if err != nil {
		log.Warn("bodyweight unavailable", "error", err)
	}

	start := time.Now()
	result, importErr := alpha.NewProvider(store, log).Ingest(ctx, f, uid, alpha.NewCatalog(catalog), bodyweight)

	durationMs := int(time.Since(start).Milliseconds())
	entry := storage.ImportLog{UserID: uid, Source: "alpha", Status: storage.ImportSuccess, DurationMs: &durationMs}
	if result != nil {
		entry.RecordsReceived = result.RecordsReceived
		entry.RecordsInserted = result.RecordsInserted
		entry.SetsReceived = result.SetsReceived
	}
	if importErr != nil {
		entry.Status = storage.ImportError
		msg := importErr.Error()
		entry.ErrorMessage = &msg
	}
	if _, err := store.InsertImportLog(ctx, entry); err != nil {
		log.Warn("failed to log import", "error", err)
	}
	return result, importErr
}

func dryRunReport(path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Info("DRY RUN mode: nothing will be written to the database")
	sessions, err := alpha.Parse(f)
	if err != nil {
		return err
	}
	sets := 0
	for _, s := range sessions {
		for _, ex := range s.Exercises {
			sets += len(ex.Sets)
		}
		log.Info("session", "name", s.Name, "date", s.Date.Format("2006-01-02"), "exercises", len(s.Exercises))
	}
	log.Info("dry run stats", "sessions", len(sessions), "sets", sets)
	return nil
}

func printResult(log *slog.Logger, r *ingest.Result) {
	log.Info("import stats",
		"sessions_received", r.RecordsReceived,
		"sessions_inserted", r.RecordsInserted,
		"sessions_skipped", r.RecordsSkipped,
		"sets_received", r.SetsReceived,
	)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/moneyrag/internal/config"
	"github.com/dvloznov/moneyrag/internal/domain"
	"github.com/dvloznov/moneyrag/internal/logger"
	"github.com/dvloznov/moneyrag/internal/session"
	"github.com/dvloznov/moneyrag/internal/store/relational"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "ask":
		runAsk(log)
	case "inspect":
		runInspect(log)
	case "init":
		runInit(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("MoneyRAG CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Ingest one or more transaction CSV exports")
	fmt.Println("  ask       Answer a question about ingested transactions")
	fmt.Println("  inspect   Show store counts and the most recent rows")
	fmt.Println("  init      Write a default moneyrag.yaml")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadConfig resolves the effective config: the named file when given,
// defaults plus env otherwise. dataDir set on the command line wins.
func loadConfig(log zerolog.Logger, path, dataDir string) *config.Config {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.APIKey == "" {
		log.Fatal().Str("provider", cfg.Provider).Msg("No API key: set GOOGLE_API_KEY or OPENAI_API_KEY")
	}
	return cfg
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to moneyrag.yaml")
	dataDir := fs.String("data-dir", "", "Persistent data directory (default: temp, removed on exit)")
	fs.Parse(os.Args[2:])

	files := fs.Args()
	if len(files) == 0 {
		log.Fatal().Msg("Usage: cli ingest [options] FILE.csv [FILE.csv ...]")
	}

	cfg := loadConfig(log, *configPath, *dataDir)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	sess, err := session.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}
	defer sess.Close()

	for _, file := range files {
		report, err := sess.Pipeline.IngestCSV(ctx, file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Ingestion failed")
		}
		fmt.Println(report.Summary())
		for _, f := range report.Failures {
			fmt.Printf("  failed: %s (%s)\n", f.Description, f.Reason)
		}
	}

	if cfg.DataDir == "" {
		fmt.Println("Note: no -data-dir given; the session store was temporary and is now gone.")
	}
}

func runAsk(log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to moneyrag.yaml")
	dataDir := fs.String("data-dir", "", "Data directory holding ingested transactions")
	question := fs.String("q", "", "Question to answer")
	fs.Parse(os.Args[2:])

	if *question == "" {
		log.Fatal().Msg("Error: -q is required")
	}

	cfg := loadConfig(log, *configPath, *dataDir)
	if cfg.DataDir == "" {
		log.Fatal().Msg("Error: ask needs -data-dir (or data_dir in config) pointing at ingested data")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	sess, err := session.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}
	defer sess.Close()

	// The vector index lives in process memory; rebuild it from the
	// relational store before routing.
	if _, err := sess.Reindex(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to rebuild vector index")
	}

	answer, err := sess.Router.Ask(ctx, *question)
	if err != nil {
		log.Fatal().Err(err).Msg("Routing failed")
	}

	fmt.Println(answer.Text)
	if answer.Partial {
		fmt.Println("\n(partial answer: the tool-step budget was exhausted)")
	}
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to moneyrag.yaml")
	dataDir := fs.String("data-dir", "", "Data directory holding ingested transactions")
	limit := fs.Int("limit", 10, "Number of recent rows to show")
	fs.Parse(os.Args[2:])

	// Inspection is read-only on the relational store and needs no LLM
	// client, so it skips the full session.
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if cfg.DataDir == "" {
		log.Fatal().Msg("Error: inspect needs -data-dir (or data_dir in config)")
	}

	ctx := logger.WithContext(context.Background(), log)

	store, err := relational.Open(filepath.Join(cfg.DataDir, "transactions.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count transactions")
	}

	fmt.Println("\n=== Store ===")
	fmt.Printf("Data dir:     %s\n", cfg.DataDir)
	fmt.Printf("Transactions: %d\n", count)

	txs, err := store.All(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	txs = tail(txs, *limit)

	fmt.Printf("\n=== Most recent (%d) ===\n", len(txs))
	for i, tx := range txs {
		fmt.Printf("\n%d. %s\n", i+1, tx.RawDescription)
		fmt.Printf("   Date:     %s\n", tx.Date.Format("2006-01-02"))
		fmt.Printf("   Amount:   %s %s\n", tx.Amount.StringFixed(2), tx.Currency)
		if tx.Merchant != "" {
			fmt.Printf("   Merchant: %s\n", tx.Merchant)
		}
		if tx.Category != "" {
			fmt.Printf("   Category: %s\n", tx.Category)
		}
		fmt.Printf("   Source:   %s\n", tx.SourceFile)
	}
	fmt.Println()
}

// tail returns the last n elements. Non-positive n yields an empty slice.
func tail(txs []*domain.Transaction, n int) []*domain.Transaction {
	if n <= 0 {
		return nil
	}
	if len(txs) > n {
		return txs[len(txs)-n:]
	}
	return txs
}

func runInit(log zerolog.Logger) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "moneyrag.yaml", "Where to write the config file")
	fs.Parse(os.Args[2:])

	if _, err := os.Stat(*path); err == nil {
		log.Fatal().Str("path", *path).Msg("Config file already exists")
	}

	if err := config.Save(*path, config.Default()); err != nil {
		log.Fatal().Err(err).Msg("Failed to write config")
	}
	fmt.Printf("Wrote %s\n", *path)
}

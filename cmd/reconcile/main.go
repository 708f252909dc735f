package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/recon-engine/internal/config"
	"github.com/example/recon-engine/internal/ingest"
	"github.com/example/recon-engine/internal/recon"
	"github.com/example/recon-engine/internal/store"
	"github.com/example/recon-engine/pkg/audit"
)

func main() {
	erpPath := flag.String("erp", "", "path to the ERP export CSV (required)")
	bankPath := flag.String("bank", "", "path to the bank statement CSV (required)")
	configPath := flag.String("config", "", "path to the TOML config file (optional)")
	outPath := flag.String("out", "", "write the result JSON here instead of stdout")
	flag.Parse()

	if *erpPath == "" || *bankPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		log.Fatalf("Invalid engine config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	erp, err := ingest.ReadFile(*erpPath, recon.SourceERP)
	if err != nil {
		log.Fatalf("Failed to read ERP export: %v", err)
	}
	bank, err := ingest.ReadFile(*bankPath, recon.SourceBank)
	if err != nil {
		log.Fatalf("Failed to read bank statement: %v", err)
	}
	log.Printf("Loaded %d ERP and %d bank transactions", len(erp), len(bank))

	runID := uuid.New().String()
	recorder := audit.NewChainRecorder(runID)
	engine, err := recon.New(runID, engineCfg, recorder)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	started := time.Now().UTC()
	result, err := engine.Run(ctx, erp, bank)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}
	completed := time.Now().UTC()

	s := result.Summary
	log.Printf("Run %s: %d exact, %d rounding, %d fuzzy matches, %d duplicate groups, %d exceptions (match rate %.1f%%)",
		runID, s.ExactMatches, s.RoundingMatches, s.FuzzyMatches, s.DuplicateGroups, len(result.Exceptions), s.MatchRate*100)

	if err := persist(ctx, cfg.Store, store.Run{
		ID:          runID,
		StartedAt:   started,
		CompletedAt: completed,
		Result:      result,
	}, recorder.Records()); err != nil {
		log.Fatalf("Failed to persist run: %v", err)
	}

	if err := writeResult(*outPath, result); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}

func persist(ctx context.Context, cfg config.StoreConfig, run store.Run, records []audit.DecisionRecord) error {
	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case "none", "":
		return nil
	case "sqlite":
		s, err = store.OpenSQLite(cfg.Path)
	case "postgres":
		s, err = store.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SaveRun(ctx, run); err != nil {
		return err
	}
	return s.SaveDecisions(ctx, run.ID, records)
}

func writeResult(path string, result *recon.Result) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

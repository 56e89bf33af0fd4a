package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"safebot-be/internal/bootstrap"
	"safebot-be/internal/config"
	"safebot-be/internal/model"
	"safebot-be/internal/service"
	"safebot-be/pkg/database"

	"github.com/fatih/color"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	dir := flag.String("dir", defaultDir(cfg), "directory with .md/.txt protocol documents")
	reset := flag.Bool("reset", false, "delete every indexed chunk before loading")
	flag.Parse()

	if cfg.Retrieval.Backend == "memory" {
		color.Red("VECTOR_STORE=memory: nothing would outlive this process. Use pgvector or KNOWLEDGE_SEED_DIR on the server.")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var db *gorm.DB
	if bootstrap.NeedsDatabase(cfg) {
		var err error
		db, err = database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			color.Red("Failed to connect to database: %v", err)
			os.Exit(1)
		}
		if err := database.Migrate(db, model.All()...); err != nil {
			color.Red("Migration failed: %v", err)
			os.Exit(1)
		}
	}

	container, err := bootstrap.NewContainer(ctx, db, cfg)
	if err != nil {
		color.Red("Bootstrap failed: %v", err)
		os.Exit(1)
	}
	defer container.Close()

	ingestion := container.IngestionService
	if *reset {
		color.Yellow("Resetting knowledge index...")
		if err := ingestion.Reset(ctx); err != nil {
			color.Red("Reset failed: %v", err)
			os.Exit(1)
		}
	}

	docs, err := service.LoadDocuments(*dir)
	if err != nil {
		color.Red("Failed to read %s: %v", *dir, err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		color.Yellow("No .md or .txt documents under %s", *dir)
		return
	}

	color.Cyan("Ingesting %d documents from %s\n", len(docs), *dir)
	failed := 0
	for _, doc := range docs {
		res, err := ingestion.Ingest(ctx, doc)
		if err != nil {
			failed++
			color.Red("  ✗ %s: %v", doc.SourceId, err)
			continue
		}
		color.Green("  ✓ %s: %d chunks (%s)", res.SourceId, res.Chunks, res.Identity)
	}

	if failed > 0 {
		color.Red("%d of %d documents failed", failed, len(docs))
		os.Exit(1)
	}
	color.Cyan("Done.")
}

func defaultDir(cfg *config.Config) string {
	if cfg.App.KnowledgeSeedDir != "" {
		return cfg.App.KnowledgeSeedDir
	}
	return "data"
}

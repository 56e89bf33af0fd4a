package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safebot-be/internal/bootstrap"
	"safebot-be/internal/config"
	"safebot-be/internal/server"
	"safebot-be/internal/service"
	"safebot-be/internal/tracer"
	"safebot-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer("safebot-be", config.Version)
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Database (only when a backend needs it)
	var gormDB *gorm.DB
	if bootstrap.NeedsDatabase(cfg) {
		var err error
		gormDB, err = database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	defer container.Close()

	// 4. Start Background Services
	if err := container.IngestionService.Consume(ctx); err != nil {
		log.Fatalf("[FATAL] Ingestion consumer: %v", err)
	}
	if cfg.App.KnowledgeSeedDir != "" {
		seedKnowledge(ctx, container.IngestionService, cfg.App.KnowledgeSeedDir)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := container.Retriever.VerifyIdentity(verifyCtx); err != nil {
		log.Fatalf("[FATAL] Knowledge index check failed: %v", err)
	}
	cancel()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

// seedKnowledge publishes every document under dir on the ingestion topic.
func seedKnowledge(ctx context.Context, ingestion service.IIngestionService, dir string) {
	docs, err := service.LoadDocuments(dir)
	if err != nil {
		log.Printf("[WARN] Failed to read knowledge seed dir %s: %v", dir, err)
		return
	}
	for _, doc := range docs {
		if err := ingestion.Publish(ctx, doc); err != nil {
			log.Printf("[WARN] Failed to queue %s: %v", doc.SourceId, err)
		}
	}
	log.Printf("Background: queued %d knowledge documents from %s", len(docs), dir)
}

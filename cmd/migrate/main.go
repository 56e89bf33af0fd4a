package main

import (
	"log"
	"os"

	"safebot-be/internal/model"
	"safebot-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Running migration for knowledge_chunks and conversations...")
	if err := database.Migrate(db, model.All()...); err != nil {
		log.Fatalf("Error: migration failed: %v", err)
	}

	log.Println("Success: Database migration completed.")
}

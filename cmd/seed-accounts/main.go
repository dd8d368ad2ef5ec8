package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/playcoinflip/backend/internal/config"
	"github.com/playcoinflip/backend/internal/database"
	"github.com/playcoinflip/backend/internal/wallet"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Seed demo accounts
	usernames := []string{"alice", "bob"}
	if env := os.Getenv("SEED_USERNAMES"); env != "" {
		usernames = strings.Split(env, ",")
	}

	store := wallet.NewStore(db)
	ctx := context.Background()

	for _, username := range usernames {
		username = strings.TrimSpace(username)
		if username == "" {
			continue
		}
		account, err := store.GetOrCreateAccount(ctx, username, cfg.StartingBalance)
		if err != nil {
			log.Fatalf("Failed to seed account %q: %v", username, err)
		}
		log.Printf("✓ Account ready: id=%d username=%s balance=%d", account.ID, account.Username, account.Balance)
	}
}

package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playcoinflip/backend/internal/api"
	"github.com/playcoinflip/backend/internal/config"
	"github.com/playcoinflip/backend/internal/database"
	"github.com/playcoinflip/backend/internal/game"
	"github.com/playcoinflip/backend/internal/migrations"
	"github.com/playcoinflip/backend/internal/redis"
	"github.com/playcoinflip/backend/internal/wallet"
	"github.com/playcoinflip/backend/internal/ws"
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

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Wire the account store and the matchmaking engine into the hub
	store := wallet.NewStore(db)
	matchmaker := game.NewMatchmaker(store, ws.GameHub, rdb, cfg)
	ws.SetEngine(matchmaker)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Initialize API handlers
	api.SetupRoutes(router, store, matchmaker, cfg)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting PlayCoinflip server on port %s (wager=%d, starting balance=%d)", port, cfg.WagerAmount, cfg.StartingBalance)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/playcoinflip/backend/internal/api/handlers"
	"github.com/playcoinflip/backend/internal/config"
	"github.com/playcoinflip/backend/internal/game"
	"github.com/playcoinflip/backend/internal/wallet"
	"github.com/playcoinflip/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, store *wallet.Store, mm *game.Matchmaker, cfg *config.Config) {
	// CORS middleware for the React development server
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			// Aggressive no-cache for development
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] Aggressive no-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		// Game endpoints
		gameGroup := v1.Group("/game")
		{
			gameGroup.GET("/ws", ws.HandleWebSocket)
			gameGroup.GET("/status", handlers.GetQueueStatus(mm))
		}

		// Wallet endpoints (deposit/withdraw collaborator)
		walletGroup := v1.Group("/wallet")
		{
			walletGroup.POST("/deposit", handlers.Deposit(store))
			walletGroup.POST("/withdraw", handlers.Withdraw(store))
		}

		// Player endpoints
		player := v1.Group("/player")
		{
			player.GET(":username", handlers.GetPlayer(store))
			player.GET(":username/transactions", handlers.GetPlayerTransactions(store))
		}

		// Match audit trail
		v1.GET("/matches/recent", handlers.RecentMatches(store))
	}
}

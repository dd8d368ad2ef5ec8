package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playcoinflip/backend/internal/game"
	"github.com/playcoinflip/backend/internal/wallet"
)

// RecentMatches returns the newest completed match records
func RecentMatches(store *wallet.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		matches, err := store.RecentMatches(c.Request.Context(), 50)
		if err != nil {
			log.Printf("[ERROR] RecentMatches failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load matches"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"matches": matches})
	}
}

// GetQueueStatus reports how many connections are waiting for an opponent
func GetQueueStatus(mm *game.Matchmaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"waiting": mm.QueueDepth()})
	}
}

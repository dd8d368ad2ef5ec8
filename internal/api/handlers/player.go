package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playcoinflip/backend/internal/wallet"
)

// GetPlayer returns the account with its current persisted balance
func GetPlayer(store *wallet.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")

		account, err := store.GetAccountByUsername(c.Request.Context(), username)
		if err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			log.Printf("[ERROR] GetPlayer failed for %s: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load player"})
			return
		}

		c.JSON(http.StatusOK, account)
	}
}

// GetPlayerTransactions returns the newest ledger rows for the account
func GetPlayerTransactions(store *wallet.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")

		account, err := store.GetAccountByUsername(c.Request.Context(), username)
		if err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			log.Printf("[ERROR] GetPlayerTransactions failed for %s: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
			return
		}

		entries, err := store.RecentLedgerEntries(c.Request.Context(), account.ID, 50)
		if err != nil {
			log.Printf("[ERROR] GetPlayerTransactions failed for %s: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"account_id": account.ID, "transactions": entries})
	}
}

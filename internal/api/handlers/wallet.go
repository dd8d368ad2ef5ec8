package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playcoinflip/backend/internal/models"
	"github.com/playcoinflip/backend/internal/wallet"
)

type walletRequest struct {
	AccountID int64 `json:"account_id" binding:"required"`
	Amount    int64 `json:"amount" binding:"required"`
}

// Deposit credits an account and appends a deposit ledger row
func Deposit(store *wallet.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req walletRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id and amount are required"})
			return
		}

		balance, err := store.Credit(c.Request.Context(), req.AccountID, req.Amount, models.KindDeposit)
		if err != nil {
			switch {
			case errors.Is(err, wallet.ErrInvalidAmount):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive"})
			case errors.Is(err, wallet.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			default:
				log.Printf("[ERROR] Deposit failed for account %d: %v", req.AccountID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process deposit"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"account_id": req.AccountID, "balance": balance})
	}
}

// Withdraw debits an account and appends a withdraw ledger row
func Withdraw(store *wallet.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req walletRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id and amount are required"})
			return
		}

		balance, err := store.Debit(c.Request.Context(), req.AccountID, req.Amount, models.KindWithdraw)
		if err != nil {
			switch {
			case errors.Is(err, wallet.ErrInvalidAmount):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive"})
			case errors.Is(err, wallet.ErrInsufficientFunds):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient funds"})
			case errors.Is(err, wallet.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			default:
				log.Printf("[ERROR] Withdraw failed for account %d: %v", req.AccountID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process withdrawal"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"account_id": req.AccountID, "balance": balance})
	}
}

package models

import (
	"time"
)

// Ledger entry kinds
const (
	KindDeposit  = "deposit"
	KindWithdraw = "withdraw"
	KindWager    = "wager"
	KindWin      = "win"
)

// Account represents a player's money account. Accounts are created on first
// sight of a new username and never deleted.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry represents one balance mutation. Rows are append-only and never
// updated; amount is signed (debits negative, credits positive).
type LedgerEntry struct {
	ID        int64     `db:"id" json:"id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	Kind      string    `db:"kind" json:"kind"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MatchRecord represents a completed coin-flip match between two players
type MatchRecord struct {
	ID           int64     `db:"id" json:"id"`
	Player1ID    int64     `db:"player1_id" json:"player1_id"`
	Player2ID    int64     `db:"player2_id" json:"player2_id"`
	WinnerID     int64     `db:"winner_id" json:"winner_id"`
	LoserID      int64     `db:"loser_id" json:"loser_id"`
	Wager        int64     `db:"wager" json:"wager"`
	WinningColor string    `db:"winning_color" json:"winning_color"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

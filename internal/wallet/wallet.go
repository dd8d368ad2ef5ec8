package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/playcoinflip/backend/internal/models"
)

// Store is the durable account store and ledger. Every balance mutation is a
// single atomic increment/decrement against the stored value plus exactly one
// ledger row, so the HTTP deposit/withdraw path and game settlement stay
// correct under concurrent activity on the same account.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store backed by the given database
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// SettlementResult carries the durable outcome of a settled match
type SettlementResult struct {
	Record        models.MatchRecord
	WinnerBalance int64
	LoserBalance  int64
}

// GetOrCreateAccount looks up an account by username, creating it with the
// given starting balance if absent. Safe under concurrent first-sight of the
// same username.
func (s *Store) GetOrCreateAccount(ctx context.Context, username string, startingBalance int64) (*models.Account, error) {
	var a models.Account
	err := s.db.GetContext(ctx, &a, `SELECT id, username, balance, created_at, updated_at FROM accounts WHERE username=$1`, username)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup account %q: %w", username, err)
	}

	// ON CONFLICT DO NOTHING so a concurrent creator wins and we re-read its row
	if _, err := s.db.ExecContext(ctx, `INSERT INTO accounts (username, balance, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) ON CONFLICT (username) DO NOTHING`, username, startingBalance); err != nil {
		return nil, fmt.Errorf("create account %q: %w", username, err)
	}
	if err := s.db.GetContext(ctx, &a, `SELECT id, username, balance, created_at, updated_at FROM accounts WHERE username=$1`, username); err != nil {
		return nil, fmt.Errorf("reload account %q: %w", username, err)
	}
	log.Printf("[WALLET] Account ready: id=%d username=%s balance=%d", a.ID, a.Username, a.Balance)
	return &a, nil
}

// GetAccountByID returns the account with its current persisted balance
func (s *Store) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	if err := s.db.GetContext(ctx, &a, `SELECT id, username, balance, created_at, updated_at FROM accounts WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return &a, nil
}

// GetAccountByUsername returns the account for a username
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	if err := s.db.GetContext(ctx, &a, `SELECT id, username, balance, created_at, updated_at FROM accounts WHERE username=$1`, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account %q: %w", username, err)
	}
	return &a, nil
}

// Credit adds amount to the account and appends one ledger row of the given
// kind. Returns the new balance.
func (s *Store) Credit(ctx context.Context, accountID, amount int64, kind string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := applyDelta(ctx, s.db, accountID, amount, false)
	if err != nil {
		return 0, err
	}
	if err := insertLedger(ctx, s.db, accountID, kind, amount); err != nil {
		return 0, err
	}
	log.Printf("[WALLET] Credit: account=%d kind=%s amount=%d balance=%d", accountID, kind, amount, balance)
	return balance, nil
}

// Debit subtracts amount from the account and appends one ledger row of the
// given kind. Fails with ErrInsufficientFunds if amount exceeds the current
// balance. Returns the new balance.
func (s *Store) Debit(ctx context.Context, accountID, amount int64, kind string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := applyDelta(ctx, s.db, accountID, -amount, true)
	if err != nil {
		return 0, err
	}
	if err := insertLedger(ctx, s.db, accountID, kind, -amount); err != nil {
		return 0, err
	}
	log.Printf("[WALLET] Debit: account=%d kind=%s amount=%d balance=%d", accountID, kind, amount, balance)
	return balance, nil
}

// SettleMatch performs the whole settlement as a single transaction: the wager
// debit and ledger row for both players, the 2x wager credit and win ledger
// row for the winner, and the match record. Either everything commits or the
// balances are left untouched.
func (s *Store) SettleMatch(ctx context.Context, player1ID, player2ID, winnerID, loserID, wager int64, winningColor string) (*SettlementResult, error) {
	if wager <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback()

	// Escrow the wager from both players. The winner's debit is offset by the
	// win credit below; the loser's debit stands.
	if _, err := applyDelta(ctx, tx, winnerID, -wager, true); err != nil {
		return nil, fmt.Errorf("debit winner %d: %w", winnerID, err)
	}
	if err := insertLedger(ctx, tx, winnerID, models.KindWager, -wager); err != nil {
		return nil, err
	}
	loserBalance, err := applyDelta(ctx, tx, loserID, -wager, true)
	if err != nil {
		return nil, fmt.Errorf("debit loser %d: %w", loserID, err)
	}
	if err := insertLedger(ctx, tx, loserID, models.KindWager, -wager); err != nil {
		return nil, err
	}

	// Pay the pot to the winner. The win ledger row records the net gain.
	winnerBalance, err := applyDelta(ctx, tx, winnerID, 2*wager, false)
	if err != nil {
		return nil, fmt.Errorf("credit winner %d: %w", winnerID, err)
	}
	if err := insertLedger(ctx, tx, winnerID, models.KindWin, wager); err != nil {
		return nil, err
	}

	record := models.MatchRecord{
		Player1ID:    player1ID,
		Player2ID:    player2ID,
		WinnerID:     winnerID,
		LoserID:      loserID,
		Wager:        wager,
		WinningColor: winningColor,
	}
	row := tx.QueryRowxContext(ctx, `INSERT INTO matches (player1_id, player2_id, winner_id, loser_id, wager, winning_color, created_at) VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id, created_at`,
		record.Player1ID, record.Player2ID, record.WinnerID, record.LoserID, record.Wager, record.WinningColor)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert match record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement tx: %w", err)
	}

	log.Printf("[SETTLE] Match %d settled: winner=%d loser=%d wager=%d color=%s", record.ID, winnerID, loserID, wager, winningColor)
	return &SettlementResult{
		Record:        record,
		WinnerBalance: winnerBalance,
		LoserBalance:  loserBalance,
	}, nil
}

// RecentLedgerEntries returns the newest ledger rows for an account
func (s *Store) RecentLedgerEntries(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	if err := s.db.SelectContext(ctx, &entries, `SELECT id, account_id, kind, amount, created_at FROM ledger_entries WHERE account_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, accountID, limit); err != nil {
		return nil, fmt.Errorf("list ledger entries for %d: %w", accountID, err)
	}
	return entries, nil
}

// RecentMatches returns the newest completed match records
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	matches := []models.MatchRecord{}
	if err := s.db.SelectContext(ctx, &matches, `SELECT id, player1_id, player2_id, winner_id, loser_id, wager, winning_color, created_at FROM matches ORDER BY created_at DESC, id DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// applyDelta atomically adjusts a balance by delta and returns the new value.
// With guard set, a negative delta only applies while the balance covers it.
func applyDelta(ctx context.Context, q sqlx.ExtContext, accountID, delta int64, guard bool) (int64, error) {
	var balance int64
	var row *sqlx.Row

	if guard && delta < 0 {
		row = q.QueryRowxContext(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2 AND balance >= $3 RETURNING balance`, delta, accountID, -delta)
	} else {
		row = q.QueryRowxContext(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2 RETURNING balance`, delta, accountID)
	}

	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing account from a guarded debit that failed
			var exists bool
			if err2 := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id=$1)`, accountID); err2 == nil && exists {
				return 0, ErrInsufficientFunds
			}
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update balance for %d: %w", accountID, err)
	}
	return balance, nil
}

// insertLedger appends one immutable ledger row
func insertLedger(ctx context.Context, q sqlx.ExtContext, accountID int64, kind string, amount int64) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO ledger_entries (account_id, kind, amount, created_at) VALUES ($1,$2,$3,NOW())`, accountID, kind, amount); err != nil {
		return fmt.Errorf("insert %s ledger row for %d: %w", kind, accountID, err)
	}
	return nil
}

package game

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/playcoinflip/backend/internal/config"
	"github.com/playcoinflip/backend/internal/models"
	"github.com/playcoinflip/backend/internal/wallet"
	"github.com/redis/go-redis/v9"
)

// Store is the durable account store and ledger the engine settles against
type Store interface {
	GetOrCreateAccount(ctx context.Context, username string, startingBalance int64) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	SettleMatch(ctx context.Context, player1ID, player2ID, winnerID, loserID, wager int64, winningColor string) (*wallet.SettlementResult, error)
}

// Notifier delivers outbound messages to live connections. Delivery is
// best-effort: a disconnected recipient simply misses the message.
type Notifier interface {
	SendToConn(connID string, message interface{})
}

// identity associates a live connection with its resolved account
type identity struct {
	accountID int64
	username  string
}

// WaitingSlot holds the single pending matchmaking request awaiting an opponent
type WaitingSlot struct {
	ConnID    string
	AccountID int64
	Username  string
	Wager     int64
	Color     Color
}

// Matchmaker owns the connection registry and the single waiting slot, pairs
// incoming match requests, and drives timed settlement of the resulting
// sessions. All registry and slot mutations happen under one mutex; no store
// call is made while it is held.
type Matchmaker struct {
	store    Store
	notifier Notifier
	rdb      *redis.Client // optional; settlement events are published best-effort
	outcome  OutcomeSource

	wager           int64
	startingBalance int64
	resolveDelay    time.Duration

	mu         sync.Mutex
	identities map[string]identity // connID -> identity
	waiting    *WaitingSlot
}

// NewMatchmaker creates the matchmaking engine
func NewMatchmaker(store Store, notifier Notifier, rdb *redis.Client, cfg *config.Config) *Matchmaker {
	return &Matchmaker{
		store:           store,
		notifier:        notifier,
		rdb:             rdb,
		outcome:         cryptoSource{},
		wager:           cfg.WagerAmount,
		startingBalance: cfg.StartingBalance,
		resolveDelay:    time.Duration(cfg.ResolveDelaySeconds) * time.Second,
		identities:      make(map[string]identity),
	}
}

// SetOutcomeSource replaces the coin-flip source (used by tests)
func (m *Matchmaker) SetOutcomeSource(src OutcomeSource) {
	m.outcome = src
}

// FindGame identifies the connection, verifies funds against the freshly read
// balance, and either installs the connection as the waiting player or pairs
// it with the current one. All failures are reported back on the connection
// as error messages.
func (m *Matchmaker) FindGame(ctx context.Context, connID, username string) {
	if username == "" {
		log.Printf("[MATCH] find_game from %s rejected: no username", connID)
		m.notifier.SendToConn(connID, errorMessage("Username is required"))
		return
	}

	account, err := m.store.GetOrCreateAccount(ctx, username, m.startingBalance)
	if err != nil {
		log.Printf("[MATCH] find_game from %s failed: %v", connID, err)
		m.notifier.SendToConn(connID, errorMessage("Error finding or creating user."))
		return
	}

	// Re-identifying the same connection is a no-op
	m.mu.Lock()
	m.identities[connID] = identity{accountID: account.ID, username: account.Username}
	m.mu.Unlock()

	// Always push the persisted balance so the client displays authoritative funds
	m.notifier.SendToConn(connID, map[string]interface{}{
		"type":       "user_data",
		"account_id": account.ID,
		"username":   account.Username,
		"balance":    account.Balance,
	})

	if account.Balance < m.wager {
		log.Printf("[MATCH] %s (%s) has insufficient funds: balance=%d wager=%d", username, connID, account.Balance, m.wager)
		m.notifier.SendToConn(connID, errorMessage("Not enough funds to play"))
		return
	}

	// Slot occupancy is decided and written in a single locked step so two
	// concurrent requests cannot both pair against the same waiting player.
	m.mu.Lock()
	if m.waiting == nil || m.waiting.ConnID == connID {
		// A connection cannot match itself; re-requesting just refreshes the slot
		m.waiting = &WaitingSlot{
			ConnID:    connID,
			AccountID: account.ID,
			Username:  account.Username,
			Wager:     m.wager,
			Color:     Red,
		}
		m.mu.Unlock()

		log.Printf("[MATCH] %s (%s) is now waiting for an opponent", username, connID)
		m.notifier.SendToConn(connID, map[string]interface{}{
			"type":    "status_update",
			"message": "Waiting for opponent...",
		})
		return
	}

	opponent := m.waiting
	m.waiting = nil
	session := &MatchSession{
		Room:      roomID(opponent.ConnID, connID),
		Player1:   Player{ConnID: opponent.ConnID, AccountID: opponent.AccountID, Username: opponent.Username, Color: Red},
		Player2:   Player{ConnID: connID, AccountID: account.ID, Username: account.Username, Color: Black},
		Wager:     opponent.Wager,
		CreatedAt: time.Now(),
	}
	m.mu.Unlock()

	log.Printf("[MATCH] Paired %s vs %s in room %s (wager=%d)", session.Player1.Username, session.Player2.Username, session.Room, session.Wager)

	start := map[string]interface{}{
		"type":    "game_start",
		"message": "Game starting! Spinning the wheel...",
		"players": []map[string]interface{}{
			{"account_id": session.Player1.AccountID, "username": session.Player1.Username, "color": session.Player1.Color},
			{"account_id": session.Player2.AccountID, "username": session.Player2.Username, "color": session.Player2.Color},
		},
		"room": session.Room,
	}
	m.broadcast(session, start)

	// The suspense window. Disconnects never cancel the scheduled resolution.
	time.AfterFunc(m.resolveDelay, func() {
		m.resolve(session)
	})
}

// Disconnect removes the connection from the registry and clears the waiting
// slot if this connection owns it. Sessions already paired are unaffected.
func (m *Matchmaker) Disconnect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.identities[connID]; ok {
		delete(m.identities, connID)
		log.Printf("[MATCH] Connection %s (%s) removed from registry", connID, id.username)
	}

	if m.waiting != nil && m.waiting.ConnID == connID {
		log.Printf("[MATCH] Waiting player %s disconnected, queue cleared", m.waiting.Username)
		m.waiting = nil
	}
}

// QueueDepth reports how many connections are waiting for an opponent (0 or 1)
func (m *Matchmaker) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waiting != nil {
		return 1
	}
	return 0
}

// resolve draws the outcome and settles the session. Balances and ledger are
// mutated regardless of connection liveness; notifications are best-effort.
// A store failure abandons the session after reporting a generic game error.
func (m *Matchmaker) resolve(session *MatchSession) {
	ctx := context.Background()

	winning := m.outcome.Draw()
	winner, loser := session.winnerLoser(winning)
	log.Printf("[SETTLE] Room %s: %s wins, winner=%s loser=%s", session.Room, winning, winner.Username, loser.Username)

	res, err := m.store.SettleMatch(ctx, session.Player1.AccountID, session.Player2.AccountID, winner.AccountID, loser.AccountID, session.Wager, string(winning))
	if err != nil {
		log.Printf("[SETTLE] Settlement failed for room %s: %v", session.Room, err)
		m.broadcast(session, errorMessage("A game error occurred"))
		return
	}

	m.broadcast(session, map[string]interface{}{
		"type":          "game_result",
		"winning_color": winning,
		"winner_id":     winner.AccountID,
		"loser_id":      loser.AccountID,
	})

	// Push each side its freshly-read post-settlement balance; the committed
	// settlement values cover a failed re-read.
	m.notifier.SendToConn(winner.ConnID, map[string]interface{}{
		"type":        "balance_update",
		"new_balance": m.freshBalance(ctx, winner.AccountID, res.WinnerBalance),
	})
	m.notifier.SendToConn(loser.ConnID, map[string]interface{}{
		"type":        "balance_update",
		"new_balance": m.freshBalance(ctx, loser.AccountID, res.LoserBalance),
	})

	m.publishSettled(ctx, session, winning, res.Record.ID)
}

// freshBalance re-reads an account's persisted balance for notification
func (m *Matchmaker) freshBalance(ctx context.Context, accountID, fallback int64) int64 {
	account, err := m.store.GetAccountByID(ctx, accountID)
	if err != nil {
		log.Printf("[SETTLE] Balance re-read failed for account %d: %v", accountID, err)
		return fallback
	}
	return account.Balance
}

// broadcast sends a message to both connections in a session
func (m *Matchmaker) broadcast(session *MatchSession, message interface{}) {
	m.notifier.SendToConn(session.Player1.ConnID, message)
	m.notifier.SendToConn(session.Player2.ConnID, message)
}

// publishSettled emits a match_settled event for external consumers
func (m *Matchmaker) publishSettled(ctx context.Context, session *MatchSession, winning Color, matchID int64) {
	if m.rdb == nil {
		return
	}

	payload := map[string]interface{}{
		"type":          "match_settled",
		"match_id":      matchID,
		"room":          session.Room,
		"player1_id":    session.Player1.AccountID,
		"player2_id":    session.Player2.AccountID,
		"winning_color": winning,
		"wager":         session.Wager,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[SETTLE] Failed to marshal match_settled event for room %s: %v", session.Room, err)
		return
	}
	if err := m.rdb.Publish(ctx, "game_events", b).Err(); err != nil {
		log.Printf("[SETTLE] publish match_settled failed: %v", err)
	}
}

// errorMessage builds the non-fatal error payload sent back on a connection
func errorMessage(msg string) map[string]interface{} {
	return map[string]interface{}{
		"type":    "error",
		"message": msg,
	}
}

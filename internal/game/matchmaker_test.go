package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playcoinflip/backend/internal/config"
	"github.com/playcoinflip/backend/internal/models"
	"github.com/playcoinflip/backend/internal/wallet"
)

// fakeStore is an in-memory Store so the engine can be tested without Postgres.
type fakeStore struct {
	mu         sync.Mutex
	accounts   map[int64]*models.Account
	byUsername map[string]int64
	ledger     []models.LedgerEntry
	matches    []models.MatchRecord
	nextID     int64
	failSettle bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[int64]*models.Account),
		byUsername: make(map[string]int64),
	}
}

func (s *fakeStore) createAccount(username string, balance int64) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a := &models.Account{ID: s.nextID, Username: username, Balance: balance, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.accounts[a.ID] = a
	s.byUsername[username] = a.ID
	return a
}

func (s *fakeStore) GetOrCreateAccount(ctx context.Context, username string, startingBalance int64) (*models.Account, error) {
	s.mu.Lock()
	if id, ok := s.byUsername[username]; ok {
		a := *s.accounts[id]
		s.mu.Unlock()
		return &a, nil
	}
	s.mu.Unlock()
	return s.createAccount(username, startingBalance), nil
}

func (s *fakeStore) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) SettleMatch(ctx context.Context, player1ID, player2ID, winnerID, loserID, wager int64, winningColor string) (*wallet.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSettle {
		return nil, errors.New("store unavailable")
	}

	winner, ok := s.accounts[winnerID]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	loser, ok := s.accounts[loserID]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	if winner.Balance < wager || loser.Balance < wager {
		return nil, wallet.ErrInsufficientFunds
	}

	winner.Balance += wager // -wager debit, +2*wager pot
	loser.Balance -= wager
	s.ledger = append(s.ledger,
		models.LedgerEntry{AccountID: winnerID, Kind: models.KindWager, Amount: -wager},
		models.LedgerEntry{AccountID: loserID, Kind: models.KindWager, Amount: -wager},
		models.LedgerEntry{AccountID: winnerID, Kind: models.KindWin, Amount: wager},
	)

	s.nextID++
	record := models.MatchRecord{
		ID:           s.nextID,
		Player1ID:    player1ID,
		Player2ID:    player2ID,
		WinnerID:     winnerID,
		LoserID:      loserID,
		Wager:        wager,
		WinningColor: winningColor,
		CreatedAt:    time.Now(),
	}
	s.matches = append(s.matches, record)

	return &wallet.SettlementResult{
		Record:        record,
		WinnerBalance: winner.Balance,
		LoserBalance:  loser.Balance,
	}, nil
}

func (s *fakeStore) accountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *fakeStore) balance(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Balance
}

func (s *fakeStore) ledgerRows(kind string) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.LedgerEntry
	for _, e := range s.ledger {
		if e.Kind == kind {
			rows = append(rows, e)
		}
	}
	return rows
}

func (s *fakeStore) matchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

func (s *fakeStore) lastMatch() models.MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[len(s.matches)-1]
}

// fakeNotifier records every message sent per connection.
type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]map[string]interface{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]map[string]interface{})}
}

func (n *fakeNotifier) SendToConn(connID string, message interface{}) {
	msg, ok := message.(map[string]interface{})
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[connID] = append(n.messages[connID], msg)
}

func (n *fakeNotifier) ofType(connID, msgType string) []map[string]interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []map[string]interface{}
	for _, msg := range n.messages[connID] {
		if t, _ := msg["type"].(string); t == msgType {
			out = append(out, msg)
		}
	}
	return out
}

func (n *fakeNotifier) lastOfType(connID, msgType string) map[string]interface{} {
	msgs := n.ofType(connID, msgType)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// fixedOutcome always draws the same color.
type fixedOutcome Color

func (f fixedOutcome) Draw() Color { return Color(f) }

func newTestMatchmaker(store *fakeStore, notifier *fakeNotifier) *Matchmaker {
	cfg := &config.Config{
		WagerAmount:         10,
		StartingBalance:     1000,
		ResolveDelaySeconds: 0,
	}
	mm := NewMatchmaker(store, notifier, nil, cfg)
	mm.resolveDelay = 20 * time.Millisecond
	mm.SetOutcomeSource(fixedOutcome(Red))
	return mm
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFindGameRequiresUsername(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	mm.FindGame(context.Background(), "conn_1", "")

	if msg := notifier.lastOfType("conn_1", "error"); msg == nil {
		t.Fatalf("expected error message for empty username")
	} else if msg["message"] != "Username is required" {
		t.Errorf("unexpected error message: %v", msg["message"])
	}
	if store.accountCount() != 0 {
		t.Errorf("no account should be created for empty username, got %d", store.accountCount())
	}
}

func TestIdentifyIsIdempotent(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	mm.FindGame(context.Background(), "conn_1", "alice")
	mm.FindGame(context.Background(), "conn_1", "alice")

	if store.accountCount() != 1 {
		t.Fatalf("expected 1 account after repeated identify, got %d", store.accountCount())
	}

	userData := notifier.ofType("conn_1", "user_data")
	if len(userData) != 2 {
		t.Fatalf("expected 2 user_data pushes, got %d", len(userData))
	}
	if userData[0]["account_id"] != userData[1]["account_id"] {
		t.Errorf("repeated identify resolved different accounts: %v vs %v", userData[0]["account_id"], userData[1]["account_id"])
	}

	mm.mu.Lock()
	registered := len(mm.identities)
	mm.mu.Unlock()
	if registered != 1 {
		t.Errorf("expected 1 registry entry, got %d", registered)
	}
}

func TestInsufficientFundsNeverOccupiesSlot(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	store.createAccount("broke", 5)

	mm.FindGame(context.Background(), "conn_1", "broke")

	if msg := notifier.lastOfType("conn_1", "error"); msg == nil {
		t.Fatalf("expected insufficient funds error")
	} else if msg["message"] != "Not enough funds to play" {
		t.Errorf("unexpected error message: %v", msg["message"])
	}
	if mm.QueueDepth() != 0 {
		t.Errorf("connection with insufficient funds must not occupy the slot")
	}
	if got := notifier.ofType("conn_1", "game_start"); len(got) != 0 {
		t.Errorf("connection with insufficient funds must not receive game_start")
	}

	// The authoritative balance is still pushed before the rejection
	if msg := notifier.lastOfType("conn_1", "user_data"); msg == nil {
		t.Errorf("expected user_data push before rejection")
	}
}

func TestTwoConnectionsPairExactlyOnce(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	mm.FindGame(context.Background(), "conn_a", "alice")

	if msg := notifier.lastOfType("conn_a", "status_update"); msg == nil {
		t.Fatalf("expected status_update while waiting")
	}
	if mm.QueueDepth() != 1 {
		t.Fatalf("expected occupied slot after first request")
	}

	mm.FindGame(context.Background(), "conn_b", "bob")

	for _, connID := range []string{"conn_a", "conn_b"} {
		starts := notifier.ofType(connID, "game_start")
		if len(starts) != 1 {
			t.Fatalf("expected exactly one game_start for %s, got %d", connID, len(starts))
		}
		if starts[0]["room"] != "game_conn_a_conn_b" {
			t.Errorf("unexpected room id: %v", starts[0]["room"])
		}
		players, ok := starts[0]["players"].([]map[string]interface{})
		if !ok || len(players) != 2 {
			t.Fatalf("expected 2 players in game_start for %s", connID)
		}
		if players[0]["color"] != Red || players[1]["color"] != Black {
			t.Errorf("expected colors Red/Black, got %v/%v", players[0]["color"], players[1]["color"])
		}
	}

	if mm.QueueDepth() != 0 {
		t.Errorf("slot must be empty after pairing")
	}
}

func TestConnectionCannotMatchItself(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	mm.FindGame(context.Background(), "conn_1", "alice")
	mm.FindGame(context.Background(), "conn_1", "alice")
	mm.FindGame(context.Background(), "conn_1", "alice")

	if got := notifier.ofType("conn_1", "game_start"); len(got) != 0 {
		t.Errorf("a connection must never be paired with itself")
	}
	if got := notifier.ofType("conn_1", "status_update"); len(got) != 3 {
		t.Errorf("expected 3 waiting notifications, got %d", len(got))
	}
	if mm.QueueDepth() != 1 {
		t.Errorf("expected the connection to still be waiting")
	}
}

func TestDisconnectClearsWaitingSlot(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	mm.FindGame(context.Background(), "conn_a", "alice")
	mm.Disconnect("conn_a")

	if mm.QueueDepth() != 0 {
		t.Fatalf("disconnect must clear the waiting slot")
	}

	mm.FindGame(context.Background(), "conn_c", "carol")

	if got := notifier.ofType("conn_c", "game_start"); len(got) != 0 {
		t.Errorf("new request must not pair with a vanished connection")
	}
	if msg := notifier.lastOfType("conn_c", "status_update"); msg == nil {
		t.Errorf("expected the new request to wait")
	}
}

func TestSettlementMovesWagerAndWritesAuditTrail(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	alice := store.createAccount("alice", 1000)
	bob := store.createAccount("bob", 1000)

	mm.FindGame(context.Background(), "conn_a", "alice")
	mm.FindGame(context.Background(), "conn_b", "bob")

	waitFor(t, "game_result", func() bool {
		return notifier.lastOfType("conn_a", "game_result") != nil && notifier.lastOfType("conn_b", "game_result") != nil
	})

	// Red wins and alice was waiting, so alice holds Red
	if got := store.balance(alice.ID); got != 1010 {
		t.Errorf("winner balance = %d, want 1010", got)
	}
	if got := store.balance(bob.ID); got != 990 {
		t.Errorf("loser balance = %d, want 990", got)
	}

	result := notifier.lastOfType("conn_a", "game_result")
	if result["winning_color"] != Red {
		t.Errorf("winning_color = %v, want Red", result["winning_color"])
	}
	if result["winner_id"] != alice.ID || result["loser_id"] != bob.ID {
		t.Errorf("unexpected winner/loser: %v/%v", result["winner_id"], result["loser_id"])
	}

	wagerRows := store.ledgerRows(models.KindWager)
	if len(wagerRows) != 2 {
		t.Fatalf("expected exactly 2 wager ledger rows, got %d", len(wagerRows))
	}
	for _, row := range wagerRows {
		if row.Amount != -10 {
			t.Errorf("wager row amount = %d, want -10", row.Amount)
		}
	}
	winRows := store.ledgerRows(models.KindWin)
	if len(winRows) != 1 {
		t.Fatalf("expected exactly 1 win ledger row, got %d", len(winRows))
	}
	if winRows[0].Amount != 10 || winRows[0].AccountID != alice.ID {
		t.Errorf("win row = %+v, want amount 10 for account %d", winRows[0], alice.ID)
	}
	if store.matchCount() != 1 {
		t.Fatalf("expected exactly 1 match record, got %d", store.matchCount())
	}
	record := store.lastMatch()
	if record.Wager != 10 || record.Player1ID != alice.ID || record.Player2ID != bob.ID {
		t.Errorf("unexpected match record: %+v", record)
	}

	// Each side receives its own fresh post-settlement balance
	if msg := notifier.lastOfType("conn_a", "balance_update"); msg == nil || msg["new_balance"] != int64(1010) {
		t.Errorf("winner balance_update = %v, want 1010", msg)
	}
	if msg := notifier.lastOfType("conn_b", "balance_update"); msg == nil || msg["new_balance"] != int64(990) {
		t.Errorf("loser balance_update = %v, want 990", msg)
	}
}

func TestBlackOutcomeFavorsSecondPlayer(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)
	mm.SetOutcomeSource(fixedOutcome(Black))

	alice := store.createAccount("alice", 1000)
	bob := store.createAccount("bob", 1000)

	mm.FindGame(context.Background(), "conn_a", "alice")
	mm.FindGame(context.Background(), "conn_b", "bob")

	waitFor(t, "game_result", func() bool {
		return notifier.lastOfType("conn_b", "game_result") != nil
	})

	if got := store.balance(bob.ID); got != 1010 {
		t.Errorf("Black winner balance = %d, want 1010", got)
	}
	if got := store.balance(alice.ID); got != 990 {
		t.Errorf("Red loser balance = %d, want 990", got)
	}
}

func TestSettlementProceedsAfterDisconnect(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)
	mm.resolveDelay = 100 * time.Millisecond

	alice := store.createAccount("alice", 1000)
	bob := store.createAccount("bob", 1000)

	mm.FindGame(context.Background(), "conn_a", "alice")
	mm.FindGame(context.Background(), "conn_b", "bob")

	// Losing the connection during the suspense window must not cancel settlement
	mm.Disconnect("conn_b")

	waitFor(t, "settlement", func() bool {
		return store.matchCount() == 1
	})

	if got := store.balance(alice.ID); got != 1010 {
		t.Errorf("winner balance = %d, want 1010", got)
	}
	if got := store.balance(bob.ID); got != 990 {
		t.Errorf("disconnected loser balance = %d, want 990", got)
	}
	if msg := notifier.lastOfType("conn_a", "game_result"); msg == nil {
		t.Errorf("still-connected side must receive game_result")
	}
}

func TestSettlementFailureAbandonsSession(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)
	store.failSettle = true

	alice := store.createAccount("alice", 1000)
	bob := store.createAccount("bob", 1000)

	mm.FindGame(context.Background(), "conn_a", "alice")
	mm.FindGame(context.Background(), "conn_b", "bob")

	waitFor(t, "settlement error", func() bool {
		return notifier.lastOfType("conn_a", "error") != nil && notifier.lastOfType("conn_b", "error") != nil
	})

	for _, connID := range []string{"conn_a", "conn_b"} {
		if msg := notifier.lastOfType(connID, "error"); msg["message"] != "A game error occurred" {
			t.Errorf("expected generic game error for %s, got %v", connID, msg["message"])
		}
		if got := notifier.ofType(connID, "game_result"); len(got) != 0 {
			t.Errorf("no game_result should be sent when settlement fails")
		}
	}
	if store.balance(alice.ID) != 1000 || store.balance(bob.ID) != 1000 {
		t.Errorf("failed settlement must leave balances untouched: %d/%d", store.balance(alice.ID), store.balance(bob.ID))
	}
	if store.matchCount() != 0 {
		t.Errorf("no match record should exist after a failed settlement")
	}
}

func TestConcurrentRequestsPairWithoutDoubleUse(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(store, notifier)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mm.FindGame(context.Background(), fmt.Sprintf("conn_%d", i), fmt.Sprintf("user_%d", i))
		}(i)
	}
	wg.Wait()

	// Every request either paired or is the single leftover waiter
	starts := 0
	for i := 0; i < n; i++ {
		starts += len(notifier.ofType(fmt.Sprintf("conn_%d", i), "game_start"))
	}
	if starts != n {
		t.Errorf("expected %d game_start deliveries (each paired connection gets one), got %d", n, starts)
	}
	if mm.QueueDepth() != 0 {
		t.Errorf("even number of requests should leave the slot empty")
	}
}

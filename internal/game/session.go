package game

import (
	"crypto/rand"
	"time"
)

// Color is a side of the coin flip
type Color string

const (
	Red   Color = "Red"
	Black Color = "Black"
)

// OutcomeSource draws the winning color for a match. It is injectable so
// tests can supply deterministic outcomes.
type OutcomeSource interface {
	Draw() Color
}

// cryptoSource draws a fair coin from crypto/rand
type cryptoSource struct{}

func (cryptoSource) Draw() Color {
	var b [1]byte
	rand.Read(b[:])
	if b[0]&1 == 0 {
		return Red
	}
	return Black
}

// Player is one side of a match session
type Player struct {
	ConnID    string
	AccountID int64
	Username  string
	Color     Color
}

// MatchSession pairs two live connections over an escrowed wager. It exists
// only between pairing and settlement; nothing retains it afterwards.
type MatchSession struct {
	Room      string
	Player1   Player // the waiting player, Red
	Player2   Player // the player whose request completed the pair, Black
	Wager     int64
	CreatedAt time.Time
}

// roomID derives the session room deterministically from both connection ids
func roomID(connA, connB string) string {
	return "game_" + connA + "_" + connB
}

// winnerLoser splits the session players by the drawn color
func (s *MatchSession) winnerLoser(winning Color) (winner, loser Player) {
	if s.Player1.Color == winning {
		return s.Player1, s.Player2
	}
	return s.Player2, s.Player1
}

package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/playcoinflip/backend/internal/models"
)

// Amount guards fire before any database work, so they are testable without a
// live Postgres.
func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	s := NewStore(nil)

	for _, amount := range []int64{0, -1, -100} {
		if _, err := s.Credit(context.Background(), 1, amount, models.KindDeposit); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestDebitRejectsNonPositiveAmounts(t *testing.T) {
	s := NewStore(nil)

	for _, amount := range []int64{0, -1, -100} {
		if _, err := s.Debit(context.Background(), 1, amount, models.KindWithdraw); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Debit(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestSettleMatchRejectsNonPositiveWager(t *testing.T) {
	s := NewStore(nil)

	if _, err := s.SettleMatch(context.Background(), 1, 2, 1, 2, 0, "Red"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("SettleMatch(wager=0) error = %v, want ErrInvalidAmount", err)
	}
}

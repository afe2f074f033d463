// Package billing meters translation requests against per-user monthly
// credit wallets. Every balance change appends a credit transaction row in
// the same atomic unit as the mutation itself.
package billing

import (
	"context"
	"errors"
	"time"
)

// Transaction kinds.
const (
	KindUsed   = "used"
	KindEarned = "earned"
)

// resetPeriod is the monthly credit reset boundary.
const resetPeriod = 30 * 24 * time.Hour

var (
	ErrInsufficientCredits = errors.New("not enough credits")
	ErrNoActivePlan        = errors.New("no active subscription plan")
)

// Plan is a subscription plan definition.
type Plan struct {
	ID              int64
	Name            string
	Type            string // free, pro, ...
	CreditsPerMonth int
	Active          bool
}

// Wallet is a user's credit balance for the current period.
type Wallet struct {
	ID           int64
	UserID       string
	PlanID       int64
	PlanCredits  int // plan.credits_per_month at load time
	CreditsUsed  int
	BonusCredits int
	LastReset    time.Time
}

// Transaction is one entry of the credit ledger. Amount is signed:
// negative for consumption, positive for rewards.
type Transaction struct {
	ID        int64
	UserID    string
	WalletID  int64
	Amount    int
	Kind      string
	Reason    string
	CreatedAt time.Time
}

// TotalCredits is the period allowance including bonus credits.
func (w *Wallet) TotalCredits() int {
	return w.PlanCredits + w.BonusCredits
}

// Remaining is the spendable balance. Callers must apply resetIfNeeded
// first; the service does this inside every store update.
func (w *Wallet) Remaining() int {
	r := w.TotalCredits() - w.CreditsUsed
	if r < 0 {
		return 0
	}
	return r
}

// resetIfNeeded zeroes the period usage once 30 days have elapsed.
// Idempotent: concurrent callers serialized by the store see LastReset
// already advanced and do nothing.
func (w *Wallet) resetIfNeeded(now time.Time) bool {
	if now.Sub(w.LastReset) < resetPeriod {
		return false
	}
	w.CreditsUsed = 0
	w.LastReset = now
	return true
}

// Store persists wallets. Update runs fn against the user's wallet under a
// per-user lock (row lock in Postgres), provisioning the wallet on first
// touch, then persists the mutated wallet and appends the returned
// transactions atomically. If fn errors, nothing is persisted.
type Store interface {
	Update(ctx context.Context, userID string, fn func(w *Wallet) ([]Transaction, error)) (*Wallet, error)
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}

// Service exposes the wallet operations used by sessions and the REST API.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Remaining applies the monthly reset if due and returns the spendable
// balance, provisioning a wallet for first-time users.
func (s *Service) Remaining(ctx context.Context, userID string) (int, error) {
	w, err := s.store.Update(ctx, userID, func(w *Wallet) ([]Transaction, error) {
		w.resetIfNeeded(s.now())
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return w.Remaining(), nil
}

// CanConsume reports whether the user can afford amount credits.
func (s *Service) CanConsume(ctx context.Context, userID string, amount int) (bool, error) {
	remaining, err := s.Remaining(ctx, userID)
	if err != nil {
		return false, err
	}
	return remaining >= amount, nil
}

// Consume deducts amount credits and logs a "used" transaction, atomically.
// Returns ErrInsufficientCredits without mutating anything when the
// balance is short.
func (s *Service) Consume(ctx context.Context, userID string, amount int, reason string) error {
	_, err := s.store.Update(ctx, userID, func(w *Wallet) ([]Transaction, error) {
		w.resetIfNeeded(s.now())
		if w.Remaining() < amount {
			return nil, ErrInsufficientCredits
		}
		w.CreditsUsed += amount
		return []Transaction{{
			UserID:   userID,
			WalletID: w.ID,
			Amount:   -amount,
			Kind:     KindUsed,
			Reason:   reason,
		}}, nil
	})
	return err
}

// Reward grants bonus credits and logs an "earned" transaction, atomically.
func (s *Service) Reward(ctx context.Context, userID string, amount int, reason string) error {
	_, err := s.store.Update(ctx, userID, func(w *Wallet) ([]Transaction, error) {
		w.resetIfNeeded(s.now())
		w.BonusCredits += amount
		return []Transaction{{
			UserID:   userID,
			WalletID: w.ID,
			Amount:   amount,
			Kind:     KindEarned,
			Reason:   reason,
		}}, nil
	})
	return err
}

// GetOrProvision ensures the user has a wallet and returns it.
func (s *Service) GetOrProvision(ctx context.Context, userID string) (*Wallet, error) {
	return s.store.Update(ctx, userID, func(w *Wallet) ([]Transaction, error) {
		w.resetIfNeeded(s.now())
		return nil, nil
	})
}

// History returns the most recent ledger entries for a user.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return s.store.Transactions(ctx, userID, limit)
}

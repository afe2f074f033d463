package billing

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and credential-less local
// runs. Per-user serialization degrades to one process-wide mutex.
type MemoryStore struct {
	mu      sync.Mutex
	plan    Plan
	wallets map[string]*Wallet
	ledger  []Transaction
	nextID  int64
}

// NewMemoryStore provisions wallets against the given plan.
func NewMemoryStore(plan Plan) *MemoryStore {
	if plan.CreditsPerMonth == 0 {
		plan = Plan{ID: 1, Name: "Free", Type: "free", CreditsPerMonth: 50, Active: true}
	}
	return &MemoryStore{plan: plan, wallets: make(map[string]*Wallet)}
}

func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(w *Wallet) ([]Transaction, error)) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		if !s.plan.Active {
			return nil, ErrNoActivePlan
		}
		s.nextID++
		w = &Wallet{
			ID:          s.nextID,
			UserID:      userID,
			PlanID:      s.plan.ID,
			PlanCredits: s.plan.CreditsPerMonth,
			LastReset:   time.Now(),
		}
		s.wallets[userID] = w
	}

	// Work on a copy so a failing fn leaves the stored wallet untouched.
	scratch := *w
	txns, err := fn(&scratch)
	if err != nil {
		return nil, err
	}
	*w = scratch

	for _, t := range txns {
		s.nextID++
		t.ID = s.nextID
		t.WalletID = w.ID
		t.CreatedAt = time.Now()
		s.ledger = append(s.ledger, t)
	}

	out := *w
	return &out, nil
}

func (s *MemoryStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transaction
	for i := len(s.ledger) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.ledger[i].UserID == userID {
			out = append(out, s.ledger[i])
		}
	}
	return out, nil
}

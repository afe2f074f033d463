package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists wallets in Postgres. Mutations serialize per user
// through SELECT ... FOR UPDATE on the subscription row; the wallet update
// and the ledger append commit in one transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Update(ctx context.Context, userID string, fn func(w *Wallet) ([]Transaction, error)) (*Wallet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin wallet tx: %w", err)
	}
	defer tx.Rollback()

	w, err := lockWallet(ctx, tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		w, err = provisionWallet(ctx, tx, userID)
	}
	if err != nil {
		return nil, err
	}

	txns, err := fn(w)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE subscriptions
		    SET credits_used = $1, bonus_credits = $2, last_reset = $3
		  WHERE id = $4`,
		w.CreditsUsed, w.BonusCredits, w.LastReset, w.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}

	for _, t := range txns {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO credit_transactions (user_id, subscription_id, amount, transaction_type, reason, created_at)
			 VALUES ($1, $2, $3, $4, $5, now())`,
			t.UserID, w.ID, t.Amount, t.Kind, t.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("append credit transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit wallet tx: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, subscription_id, amount, transaction_type, reason, created_at
		   FROM credit_transactions
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query credit transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.WalletID, &t.Amount, &t.Kind, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func lockWallet(ctx context.Context, tx *sql.Tx, userID string) (*Wallet, error) {
	var w Wallet
	var lastReset time.Time
	err := tx.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.plan_id, p.credits_per_month, s.credits_used, s.bonus_credits, s.last_reset
		   FROM subscriptions s
		   JOIN subscription_plans p ON p.id = s.plan_id
		  WHERE s.user_id = $1
		    FOR UPDATE OF s`,
		userID,
	).Scan(&w.ID, &w.UserID, &w.PlanID, &w.PlanCredits, &w.CreditsUsed, &w.BonusCredits, &lastReset)
	if err != nil {
		return nil, err
	}
	w.LastReset = lastReset
	return &w, nil
}

// provisionWallet attaches the active free plan (or any active plan as
// fallback) to a user seen for the first time.
func provisionWallet(ctx context.Context, tx *sql.Tx, userID string) (*Wallet, error) {
	var plan Plan
	err := tx.QueryRowContext(ctx,
		`SELECT id, credits_per_month FROM subscription_plans
		  WHERE plan_type = 'free' AND is_active
		  LIMIT 1`,
	).Scan(&plan.ID, &plan.CreditsPerMonth)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			`SELECT id, credits_per_month FROM subscription_plans
			  WHERE is_active
			  ORDER BY id
			  LIMIT 1`,
		).Scan(&plan.ID, &plan.CreditsPerMonth)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActivePlan
	}
	if err != nil {
		return nil, fmt.Errorf("select plan: %w", err)
	}

	w := &Wallet{
		UserID:      userID,
		PlanID:      plan.ID,
		PlanCredits: plan.CreditsPerMonth,
		LastReset:   time.Now(),
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_id, credits_used, bonus_credits, last_reset, status)
		 VALUES ($1, $2, 0, 0, $3, 'active')
		 RETURNING id`,
		userID, plan.ID, w.LastReset,
	).Scan(&w.ID)
	if err != nil {
		return nil, fmt.Errorf("provision wallet: %w", err)
	}
	return w, nil
}

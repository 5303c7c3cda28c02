package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sanhub/backend/internal/db"
)

// ErrInsufficientBalance is returned by strict updates that would drive the
// balance below zero. No mutation happens in that case.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrUserNotFound is returned when the target user row does not exist.
var ErrUserNotFound = errors.New("user not found")

type Repository struct {
	db db.Adapter
}

func NewRepository(adapter db.Adapter) *Repository {
	return &Repository{db: adapter}
}

// ApplyStrict applies delta as a single guarded statement: the UPDATE itself
// refuses to go below zero, so concurrent debits for the same user cannot
// race past each other. Zero affected rows means either the guard fired or
// the user is missing; a follow-up read disambiguates.
func (r *Repository) ApplyStrict(ctx context.Context, userID string, delta int64) (int64, error) {
	_, meta, err := r.db.Execute(ctx, `
		UPDATE users SET balance = balance + ?, updated_at = ?
		WHERE id = ? AND balance + ? >= 0
	`, delta, time.Now().UnixMilli(), userID, delta)
	if err != nil {
		return 0, err
	}
	if meta.AffectedRows == 0 {
		if _, err := r.Balance(ctx, userID); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientBalance
	}
	return r.Balance(ctx, userID)
}

// ApplyClamp applies delta with the balance floored at zero instead of the
// update being rejected. GREATEST is rewritten to MAX on the embedded backend.
func (r *Repository) ApplyClamp(ctx context.Context, userID string, delta int64) (int64, error) {
	_, _, err := r.db.Execute(ctx, `
		UPDATE users SET balance = GREATEST(balance + ?, 0), updated_at = ?
		WHERE id = ?
	`, delta, time.Now().UnixMilli(), userID)
	if err != nil {
		return 0, err
	}
	// The affected-row count is not consulted here: the MySQL driver reports
	// rows changed, not matched, so a reclaim against an already-zero balance
	// looks identical to a missing user. The follow-up read returns the
	// balance either way and surfaces ErrUserNotFound when the row is gone.
	return r.Balance(ctx, userID)
}

// Balance reads the current stored balance.
func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	rows, _, err := r.db.Execute(ctx, "SELECT balance FROM users WHERE id = ?", userID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrUserNotFound
	}
	return rows[0].Int64("balance"), nil
}

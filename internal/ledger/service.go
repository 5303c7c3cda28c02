// Package ledger owns atomic mutation of user credit balances. Every balance
// change in the system goes through UpdateBalance so there is a single
// auditable point of mutation, expressed as one guarded SQL statement rather
// than a read-modify-write pair.
package ledger

import (
	"context"
	"fmt"
)

// Policy selects how an update behaves when it would drive balance negative.
type Policy string

const (
	// PolicyStrict rejects the update outright. Used for the final debit
	// after a job succeeds, where a silent skip would mean a double-spend.
	PolicyStrict Policy = "strict"
	// PolicyClamp floors the balance at zero instead. Used for
	// administrative grants and reclaims.
	PolicyClamp Policy = "clamp"
)

type Service interface {
	// UpdateBalance applies delta to the user's balance under the given
	// policy and returns the resulting balance.
	UpdateBalance(ctx context.Context, userID string, delta int64, policy Policy) (int64, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) UpdateBalance(ctx context.Context, userID string, delta int64, policy Policy) (int64, error) {
	if delta == 0 {
		return s.repo.Balance(ctx, userID)
	}
	switch policy {
	case PolicyStrict:
		return s.repo.ApplyStrict(ctx, userID, delta)
	case PolicyClamp:
		return s.repo.ApplyClamp(ctx, userID, delta)
	default:
		return 0, fmt.Errorf("unknown balance policy %q", policy)
	}
}

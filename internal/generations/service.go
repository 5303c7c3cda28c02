// Package generations stores job records and enforces their state machine:
// pending -> processing -> completed | failed. Terminal states are final;
// the guards live in the UPDATE statements themselves so a stale transition
// is a no-op rather than an overwrite.
package generations

import (
	"context"
	"errors"

	"github.com/sanhub/backend/internal/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("generation not found")

// ErrEmptyResult rejects a completion attempt without a durable reference.
var ErrEmptyResult = errors.New("completed record requires a result reference")

// progressStep is the minimum advance (in percentage points) worth
// persisting; smaller steps are dropped to avoid write amplification from a
// noisy provider progress stream.
const progressStep = 5

type Service interface {
	Create(ctx context.Context, gen *models.Generation) error
	Get(ctx context.Context, id string) (*models.Generation, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Generation, error)
	ListActive(ctx context.Context, userID string, limit int) ([]*models.Generation, error)

	MarkProcessing(ctx context.Context, id string) error
	Progress(ctx context.Context, id string, params map[string]any, last, current int) (int, error)
	Complete(ctx context.Context, id, resultURL string, params map[string]any) error
	Fail(ctx context.Context, id, message string) error
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, gen *models.Generation) error {
	return s.repo.Create(ctx, gen)
}

func (s *service) Get(ctx context.Context, id string) (*models.Generation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Generation, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *service) ListActive(ctx context.Context, userID string, limit int) ([]*models.Generation, error) {
	return s.repo.ListActive(ctx, userID, limit)
}

func (s *service) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.repo.MarkProcessing(ctx, id)
	return err
}

// Progress persists a progress update only when it advanced by at least
// progressStep points since last, or reached 100. It returns the new
// watermark the caller should carry forward.
func (s *service) Progress(ctx context.Context, id string, params map[string]any, last, current int) (int, error) {
	if current-last < progressStep && current < 100 {
		return last, nil
	}
	if params == nil {
		params = map[string]any{}
	}
	params["progress"] = current
	if _, err := s.repo.UpdateParams(ctx, id, params); err != nil {
		return last, err
	}
	return current, nil
}

func (s *service) Complete(ctx context.Context, id, resultURL string, params map[string]any) error {
	if resultURL == "" {
		return ErrEmptyResult
	}
	_, err := s.repo.MarkCompleted(ctx, id, resultURL, params)
	return err
}

func (s *service) Fail(ctx context.Context, id, message string) error {
	if message == "" {
		message = "generation failed"
	}
	_, err := s.repo.MarkFailed(ctx, id, message)
	return err
}

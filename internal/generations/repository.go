package generations

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sanhub/backend/internal/db"
	"github.com/sanhub/backend/internal/models"
)

type Repository struct {
	db db.Adapter
}

func NewRepository(adapter db.Adapter) *Repository {
	return &Repository{db: adapter}
}

// Create persists a new record in the pending state. ID and timestamps are
// assigned here; cost is fixed from this point on.
func (r *Repository) Create(ctx context.Context, gen *models.Generation) error {
	now := time.Now().UnixMilli()
	gen.ID = uuid.NewString()
	gen.Status = models.StatusPending
	gen.CreatedAt = now
	gen.UpdatedAt = now
	if gen.Params == nil {
		gen.Params = map[string]any{}
	}
	params, err := json.Marshal(gen.Params)
	if err != nil {
		return err
	}
	_, _, err = r.db.Execute(ctx, `
		INSERT INTO generations (id, user_id, type, prompt, params, result_url, cost, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, gen.ID, gen.UserID, string(gen.Type), gen.Prompt, string(params), gen.ResultURL,
		gen.Cost, string(gen.Status), nil, gen.CreatedAt, gen.UpdatedAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.Generation, error) {
	rows, _, err := r.db.Execute(ctx, "SELECT * FROM generations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToGeneration(rows[0]), nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, _, err := r.db.Execute(ctx, `
		SELECT * FROM generations WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rowsToGenerations(rows), nil
}

// ListActive returns the user's records still pending or processing.
func (r *Repository) ListActive(ctx context.Context, userID string, limit int) ([]*models.Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, _, err := r.db.Execute(ctx, `
		SELECT * FROM generations WHERE user_id = ? AND status IN ('pending', 'processing')
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rowsToGenerations(rows), nil
}

// ListByStatus is the admin view across all users; status may be empty.
func (r *Repository) ListByStatus(ctx context.Context, status models.GenerationStatus, limit, offset int) ([]*models.Generation, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	stmt := "SELECT * FROM generations"
	params := []any{}
	if status != "" {
		stmt += " WHERE status = ?"
		params = append(params, string(status))
	}
	stmt += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	params = append(params, limit, offset)
	rows, _, err := r.db.Execute(ctx, stmt, params...)
	if err != nil {
		return nil, err
	}
	return rowsToGenerations(rows), nil
}

// Transition statements carry a status guard so terminal records are never
// overwritten: a stale transition simply affects zero rows.

func (r *Repository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	_, meta, err := r.db.Execute(ctx, `
		UPDATE generations SET status = 'processing', updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, time.Now().UnixMilli(), id)
	return meta.AffectedRows > 0, err
}

func (r *Repository) MarkCompleted(ctx context.Context, id, resultURL string, params map[string]any) (bool, error) {
	now := time.Now().UnixMilli()
	if params != nil {
		doc, err := json.Marshal(params)
		if err != nil {
			return false, err
		}
		_, meta, err := r.db.Execute(ctx, `
			UPDATE generations SET status = 'completed', result_url = ?, params = ?, error_message = NULL, updated_at = ?
			WHERE id = ? AND status IN ('pending', 'processing')
		`, resultURL, string(doc), now, id)
		return meta.AffectedRows > 0, err
	}
	_, meta, err := r.db.Execute(ctx, `
		UPDATE generations SET status = 'completed', result_url = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
	`, resultURL, now, id)
	return meta.AffectedRows > 0, err
}

func (r *Repository) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	_, meta, err := r.db.Execute(ctx, `
		UPDATE generations SET status = 'failed', error_message = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
	`, message, time.Now().UnixMilli(), id)
	return meta.AffectedRows > 0, err
}

// UpdateParams rewrites the parameter bag of a non-terminal record; used for
// progress reporting.
func (r *Repository) UpdateParams(ctx context.Context, id string, params map[string]any) (bool, error) {
	doc, err := json.Marshal(params)
	if err != nil {
		return false, err
	}
	_, meta, err := r.db.Execute(ctx, `
		UPDATE generations SET params = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
	`, string(doc), time.Now().UnixMilli(), id)
	return meta.AffectedRows > 0, err
}

// Delete removes a single record owned by userID. Deletion never reverses a
// prior debit.
func (r *Repository) Delete(ctx context.Context, id, userID string) (bool, error) {
	_, meta, err := r.db.Execute(ctx,
		"DELETE FROM generations WHERE id = ? AND user_id = ?", id, userID)
	return meta.AffectedRows > 0, err
}

func (r *Repository) DeleteBatch(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	params := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		params = append(params, id)
	}
	params = append(params, userID)
	_, meta, err := r.db.Execute(ctx,
		"DELETE FROM generations WHERE id IN ("+placeholders+") AND user_id = ?", params...)
	return meta.AffectedRows, err
}

// DeleteFinished clears a user's terminal records, keeping in-flight jobs.
func (r *Repository) DeleteFinished(ctx context.Context, userID string) (int64, error) {
	_, meta, err := r.db.Execute(ctx, `
		DELETE FROM generations WHERE user_id = ? AND status NOT IN ('pending', 'processing')
	`, userID)
	return meta.AffectedRows, err
}

// AdminDelete removes any record regardless of owner.
func (r *Repository) AdminDelete(ctx context.Context, id string) (bool, error) {
	_, meta, err := r.db.Execute(ctx, "DELETE FROM generations WHERE id = ?", id)
	return meta.AffectedRows > 0, err
}

func rowToGeneration(row db.Row) *models.Generation {
	status := models.GenerationStatus(row.String("status"))
	if status == "" {
		status = models.StatusCompleted
	}
	updated := row.Int64("updated_at")
	if updated == 0 {
		updated = row.Int64("created_at")
	}
	return &models.Generation{
		ID:           row.String("id"),
		UserID:       row.String("user_id"),
		Type:         models.GenerationType(row.String("type")),
		Prompt:       row.String("prompt"),
		Params:       row.JSONMap("params"),
		ResultURL:    row.String("result_url"),
		Cost:         row.Int64("cost"),
		Status:       status,
		ErrorMessage: row.String("error_message"),
		CreatedAt:    row.Int64("created_at"),
		UpdatedAt:    updated,
	}
}

func rowsToGenerations(rows []db.Row) []*models.Generation {
	out := make([]*models.Generation, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToGeneration(row))
	}
	return out
}

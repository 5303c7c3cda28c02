// Package users stores accounts. Balance mutation lives in the ledger
// package; this repository only reads balances.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sanhub/backend/internal/db"
	"github.com/sanhub/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrNotFound is returned when the requested user does not exist.
var ErrNotFound = errors.New("user not found")

type Repository struct {
	db db.Adapter
}

func NewRepository(adapter db.Adapter) *Repository {
	return &Repository{db: adapter}
}

func (r *Repository) Create(ctx context.Context, email, passwordHash, name, role string, balance int64) (*models.User, error) {
	existing, _, err := r.db.Execute(ctx, "SELECT id FROM users WHERE email = ?", email)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrDuplicateEmail
	}
	now := time.Now().UnixMilli()
	u := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  passwordHash,
		Name:      name,
		Role:      role,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, _, err = r.db.Execute(ctx, `
		INSERT INTO users (id, email, password, name, role, balance, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Password, u.Name, u.Role, u.Balance, false, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "SELECT * FROM users WHERE id = ?", id)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "SELECT * FROM users WHERE email = ?", email)
}

func (r *Repository) getOne(ctx context.Context, stmt string, arg any) (*models.User, error) {
	rows, _, err := r.db.Execute(ctx, stmt, arg)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToUser(rows[0]), nil
}

// List returns users ordered newest-first, optionally filtered by a search
// term matched against email and name.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	stmt := "SELECT * FROM users"
	params := []any{}
	if term := strings.TrimSpace(search); term != "" {
		stmt += " WHERE email LIKE ? OR name LIKE ?"
		like := "%" + term + "%"
		params = append(params, like, like)
	}
	stmt += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	params = append(params, limit, offset)

	rows, _, err := r.db.Execute(ctx, stmt, params...)
	if err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToUser(row))
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context, search string) (int64, error) {
	stmt := "SELECT COUNT(1) AS count FROM users"
	params := []any{}
	if term := strings.TrimSpace(search); term != "" {
		stmt += " WHERE email LIKE ? OR name LIKE ?"
		like := "%" + term + "%"
		params = append(params, like, like)
	}
	rows, _, err := r.db.Execute(ctx, stmt, params...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Int64("count"), nil
}

// SetDisabled flips the account's disabled flag.
func (r *Repository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	_, meta, err := r.db.Execute(ctx,
		"UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?",
		disabled, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if meta.AffectedRows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, meta, err := r.db.Execute(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	if meta.AffectedRows == 0 {
		return ErrNotFound
	}
	return nil
}

func rowToUser(row db.Row) *models.User {
	return &models.User{
		ID:        row.String("id"),
		Email:     row.String("email"),
		Password:  row.String("password"),
		Name:      row.String("name"),
		Role:      row.String("role"),
		Balance:   row.Int64("balance"),
		Disabled:  row.Bool("disabled"),
		CreatedAt: row.Int64("created_at"),
		UpdatedAt: row.Int64("updated_at"),
	}
}

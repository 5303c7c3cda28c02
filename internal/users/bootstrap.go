package users

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/sanhub/backend/internal/models"
)

// Bootstrap ensures the admin account named by the deployment config exists.
func Bootstrap(ctx context.Context, repo *Repository, email, password string) error {
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := repo.Create(ctx, email, string(hash), "Admin", models.RoleAdmin, 999999); err != nil {
		return err
	}
	slog.Info("admin account created", "email", email)
	return nil
}

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/db"
	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/users"
)

func setup(t *testing.T) (Service, db.Adapter) {
	t.Helper()
	adapter, err := db.NewSQLiteAdapter(db.Config{SQLitePath: filepath.Join(t.TempDir(), "auth.db")})
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })
	if err := db.Init(context.Background(), adapter); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	repo := users.NewRepository(adapter)
	system := config.NewSystemStore(adapter)
	return NewService(repo, system, "test-secret"), adapter
}

func TestRegisterLoginValidate(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "hunter22", "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != models.RoleUser {
		t.Errorf("role: got %q, want user", user.Role)
	}
	if user.Balance != 100 {
		t.Errorf("default balance: got %d, want 100", user.Balance)
	}

	token, logged, err := svc.Login(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != user.ID {
		t.Error("login should return the registered user")
	}

	userID, role, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != user.ID || role != models.RoleUser {
		t.Errorf("claims: got (%s, %s)", userID, role)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "bob@example.com", "correct horse", "Bob"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got: %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email should yield the same error, got: %v", err)
	}
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	svc, adapter := setup(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, "carol@example.com", "passw0rd", "Carol")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := adapter.Execute(ctx, "UPDATE users SET disabled = 1 WHERE id = ?", user.ID); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	if _, _, err := svc.Login(ctx, "carol@example.com", "passw0rd"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("expected ErrAccountDisabled, got: %v", err)
	}
}

func TestRegisterHonorsRegistrationFlag(t *testing.T) {
	svc, adapter := setup(t)
	ctx := context.Background()
	if _, _, err := adapter.Execute(ctx, "UPDATE system_config SET register_enabled = 0 WHERE id = 1"); err != nil {
		t.Fatalf("close registration: %v", err)
	}
	if _, err := svc.Register(ctx, "dave@example.com", "passw0rd", "Dave"); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("expected ErrRegistrationClosed, got: %v", err)
	}
}

func TestValidateRejectsForeignToken(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "eve@example.com", "passw0rd", "Eve"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := svc.Login(ctx, "eve@example.com", "passw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	bad, _ := NewService(nil, nil, "different-secret").issueToken("x", "user")
	if _, _, err := svc.ValidateToken(ctx, bad); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
	if _, _, err := svc.ValidateToken(ctx, token+"tampered"); err == nil {
		t.Error("tampered token must be rejected")
	}
}

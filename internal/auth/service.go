// Package auth issues and validates the bearer tokens that identify users to
// the API, and owns registration and login.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/users"
)

// ErrInvalidCredentials covers both unknown email and wrong password, so the
// response does not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrRegistrationClosed is returned when self-registration is disabled.
var ErrRegistrationClosed = errors.New("registration is closed")

// ErrAccountDisabled is returned when a disabled user tries to log in.
var ErrAccountDisabled = errors.New("account disabled")

type Service interface {
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	ValidateToken(ctx context.Context, token string) (userID, role string, err error)
}

type service struct {
	repo   *users.Repository
	system *config.SystemStore
	secret []byte
}

func NewService(repo *users.Repository, system *config.SystemStore, secret string) *service {
	return &service{repo: repo, system: system, secret: []byte(secret)}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	cfg, err := s.system.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.RegisterEnabled {
		return nil, ErrRegistrationClosed
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, email, string(hash), name, models.RoleUser, cfg.DefaultBalance)
}

func (s *service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return "", nil, ErrAccountDisabled
	}
	token, err := s.issueToken(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *service) issueToken(userID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (string, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Subject == "" {
		return "", "", errors.New("invalid token")
	}
	return c.Subject, c.Role, nil
}

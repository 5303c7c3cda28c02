package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sanhub/backend/internal/ledger"
	"github.com/sanhub/backend/internal/provider"
)

// ErrInsufficientBalance rejects a message the user cannot pay for.
var ErrInsufficientBalance = errors.New("insufficient balance")

// contextWindow is how many prior messages are replayed to the upstream.
const contextWindow = 20

// Completer is the slice of the provider chat client the service consumes.
type Completer interface {
	Complete(ctx context.Context, baseURL, apiKey, model string, messages []provider.ChatMessage) (string, error)
}

type Service interface {
	ListModels(ctx context.Context) ([]*Model, error)
	ListSessions(ctx context.Context, userID string) ([]*Session, error)
	GetHistory(ctx context.Context, userID, sessionID string) (*Session, []*Message, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	SendMessage(ctx context.Context, userID, sessionID, modelID, content string) (*Session, *Message, error)
}

type service struct {
	repo      *Repository
	ledger    ledger.Service
	completer Completer
	log       *slog.Logger
}

func NewService(repo *Repository, led ledger.Service, completer Completer, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, ledger: led, completer: completer, log: log}
}

var _ Service = (*service)(nil)

func (s *service) ListModels(ctx context.Context) ([]*Model, error) {
	return s.repo.ListModels(ctx, true)
}

func (s *service) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.repo.ListSessions(ctx, userID, 0)
}

func (s *service) GetHistory(ctx context.Context, userID, sessionID string) (*Session, []*Message, error) {
	session, err := s.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.repo.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

func (s *service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	ok, err := s.repo.DeleteSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// SendMessage is the synchronous flow: debit first, then call the upstream.
// A failed upstream call refunds the debit so the user is never charged for
// a reply they did not get.
func (s *service) SendMessage(ctx context.Context, userID, sessionID, modelID, content string) (*Session, *Message, error) {
	var session *Session
	var err error
	if sessionID != "" {
		session, err = s.repo.GetSession(ctx, sessionID, userID)
		if err != nil {
			return nil, nil, err
		}
		modelID = session.ModelID
	}

	model, err := s.repo.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if !model.Enabled {
		return nil, nil, ErrModelNotFound
	}

	if session == nil {
		session, err = s.repo.CreateSession(ctx, userID, model.ID, sessionTitle(content))
		if err != nil {
			return nil, nil, err
		}
	}

	if _, err := s.ledger.UpdateBalance(ctx, userID, -model.CostPerMessage, ledger.PolicyStrict); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return nil, nil, ErrInsufficientBalance
		}
		return nil, nil, err
	}

	history, err := s.repo.ListRecentMessages(ctx, session.ID, contextWindow)
	if err != nil {
		return nil, nil, err
	}
	wire := make([]provider.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		wire = append(wire, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}
	wire = append(wire, provider.ChatMessage{Role: "user", Content: content})

	reply, err := s.completer.Complete(ctx, model.APIURL, model.APIKey, model.ModelID, wire)
	if err != nil {
		if _, refundErr := s.ledger.UpdateBalance(ctx, userID, model.CostPerMessage, ledger.PolicyClamp); refundErr != nil {
			s.log.Error("chat refund failed", "user_id", userID, "error", refundErr)
		}
		return nil, nil, err
	}

	if _, err := s.repo.AppendMessage(ctx, session.ID, "user", content); err != nil {
		return nil, nil, err
	}
	assistant, err := s.repo.AppendMessage(ctx, session.ID, "assistant", reply)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.TouchSession(ctx, session.ID); err != nil {
		s.log.Warn("touch session failed", "session_id", session.ID, "error", err)
	}
	return session, assistant, nil
}

func sessionTitle(content string) string {
	title := strings.TrimSpace(content)
	// Truncate on runes so a multi-byte character is never split.
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:60])
	}
	return title
}

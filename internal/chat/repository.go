// Package chat stores conversations and runs the synchronous chat flow: one
// provider call and one strict debit per user message.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sanhub/backend/internal/db"
)

// ErrModelNotFound is returned when the requested chat model is unknown or
// disabled.
var ErrModelNotFound = errors.New("chat model not found")

// ErrSessionNotFound is returned when the session does not exist or belongs
// to another user.
var ErrSessionNotFound = errors.New("chat session not found")

// Model is a configured chat upstream with its own endpoint and price.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	APIURL         string `json:"-"`
	APIKey         string `json:"-"`
	ModelID        string `json:"model_id"`
	SupportsVision bool   `json:"supports_vision"`
	MaxTokens      int64  `json:"max_tokens"`
	Enabled        bool   `json:"enabled"`
	CostPerMessage int64  `json:"cost_per_message"`
	CreatedAt      int64  `json:"created_at"`
}

type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	ModelID   string `json:"model_id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type Repository struct {
	db db.Adapter
}

func NewRepository(adapter db.Adapter) *Repository {
	return &Repository{db: adapter}
}

func (r *Repository) ListModels(ctx context.Context, enabledOnly bool) ([]*Model, error) {
	stmt := "SELECT * FROM chat_models"
	if enabledOnly {
		stmt += " WHERE enabled = 1"
	}
	stmt += " ORDER BY created_at"
	rows, _, err := r.db.Execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	out := make([]*Model, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToModel(row))
	}
	return out, nil
}

func (r *Repository) GetModel(ctx context.Context, id string) (*Model, error) {
	rows, _, err := r.db.Execute(ctx, "SELECT * FROM chat_models WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrModelNotFound
	}
	return rowToModel(rows[0]), nil
}

func (r *Repository) CreateModel(ctx context.Context, m *Model) error {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UnixMilli()
	if m.MaxTokens == 0 {
		m.MaxTokens = 128000
	}
	if m.CostPerMessage == 0 {
		m.CostPerMessage = 1
	}
	_, _, err := r.db.Execute(ctx, `
		INSERT INTO chat_models (id, name, api_url, api_key, model_id, supports_vision, max_tokens, enabled, cost_per_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.APIURL, m.APIKey, m.ModelID, m.SupportsVision, m.MaxTokens, m.Enabled, m.CostPerMessage, m.CreatedAt)
	return err
}

func (r *Repository) DeleteModel(ctx context.Context, id string) (bool, error) {
	_, meta, err := r.db.Execute(ctx, "DELETE FROM chat_models WHERE id = ?", id)
	return meta.AffectedRows > 0, err
}

func (r *Repository) CreateSession(ctx context.Context, userID, modelID, title string) (*Session, error) {
	now := time.Now().UnixMilli()
	if title == "" {
		title = "New chat"
	}
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		ModelID:   modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, _, err := r.db.Execute(ctx, `
		INSERT INTO chat_sessions (id, user_id, title, model_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.Title, s.ModelID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) GetSession(ctx context.Context, id, userID string) (*Session, error) {
	rows, _, err := r.db.Execute(ctx,
		"SELECT * FROM chat_sessions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrSessionNotFound
	}
	return rowToSession(rows[0]), nil
}

func (r *Repository) ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, _, err := r.db.Execute(ctx, `
		SELECT * FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToSession(row))
	}
	return out, nil
}

func (r *Repository) TouchSession(ctx context.Context, id string) error {
	_, _, err := r.db.Execute(ctx,
		"UPDATE chat_sessions SET updated_at = ? WHERE id = ?", time.Now().UnixMilli(), id)
	return err
}

func (r *Repository) DeleteSession(ctx context.Context, id, userID string) (bool, error) {
	_, meta, err := r.db.Execute(ctx,
		"DELETE FROM chat_sessions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, err
	}
	if meta.AffectedRows > 0 {
		_, _, _ = r.db.Execute(ctx, "DELETE FROM chat_messages WHERE session_id = ?", id)
	}
	return meta.AffectedRows > 0, nil
}

func (r *Repository) AppendMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	m := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, _, err := r.db.Execute(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, token_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns a session's messages oldest first.
func (r *Repository) ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, _, err := r.db.Execute(ctx, `
		SELECT * FROM chat_messages WHERE session_id = ? ORDER BY created_at LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToMessage(row))
	}
	return out, nil
}

// ListRecentMessages returns the newest limit messages in chronological
// order, for replaying conversation context upstream.
func (r *Repository) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, _, err := r.db.Execute(ctx, `
		SELECT * FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = rowToMessage(row)
	}
	return out, nil
}

func rowToMessage(row db.Row) *Message {
	return &Message{
		ID:        row.String("id"),
		SessionID: row.String("session_id"),
		Role:      row.String("role"),
		Content:   row.String("content"),
		CreatedAt: row.Int64("created_at"),
	}
}

func rowToModel(row db.Row) *Model {
	return &Model{
		ID:             row.String("id"),
		Name:           row.String("name"),
		APIURL:         row.String("api_url"),
		APIKey:         row.String("api_key"),
		ModelID:        row.String("model_id"),
		SupportsVision: row.Bool("supports_vision"),
		MaxTokens:      row.Int64("max_tokens"),
		Enabled:        row.Bool("enabled"),
		CostPerMessage: row.Int64("cost_per_message"),
		CreatedAt:      row.Int64("created_at"),
	}
}

func rowToSession(row db.Row) *Session {
	return &Session{
		ID:        row.String("id"),
		UserID:    row.String("user_id"),
		Title:     row.String("title"),
		ModelID:   row.String("model_id"),
		CreatedAt: row.Int64("created_at"),
		UpdatedAt: row.Int64("updated_at"),
	}
}

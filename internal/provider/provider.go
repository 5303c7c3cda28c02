// Package provider wraps the upstream generation APIs behind a single
// interface. Each provider resolves its key and base URL at call time from
// the system configuration, so admin changes apply without a restart.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/models"
)

// ErrNotConfigured is returned when the provider's API key is missing.
var ErrNotConfigured = errors.New("provider not configured")

// FilePayload is an input reference (image or video) attached to a request.
type FilePayload struct {
	MimeType string
	Data     []byte
}

// Request carries everything a provider needs to run one generation.
type Request struct {
	Type   models.GenerationType
	Prompt string
	Model  string
	Params map[string]any
	Files  []FilePayload
}

// Result is a finished generation. URL is either a remote http(s) URL or an
// inline data: payload; Meta carries provider-specific extras.
type Result struct {
	URL  string
	Meta map[string]any
}

// ProgressFunc receives integer progress in [0, 100]. Implementations may
// call it from the polling goroutine at any frequency; throttling is the
// caller's concern.
type ProgressFunc func(progress int)

type Provider interface {
	Generate(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error)
}

// Settings yields the current system configuration.
type Settings func(ctx context.Context) (*config.System, error)

// Registry maps generation types to their providers.
type Registry struct {
	providers map[models.GenerationType]Provider
}

// NewRegistry wires the default provider set against the given settings
// source.
func NewRegistry(settings Settings) *Registry {
	return &Registry{providers: map[models.GenerationType]Provider{
		models.TypeSoraVideo:   NewSoraVideo(settings),
		models.TypeSoraImage:   NewSoraImage(settings),
		models.TypeGeminiImage: NewOpenAIImage(settings, geminiSettings),
		models.TypeZImageImage: NewOpenAIImage(settings, zimageSettings),
	}}
}

// Lookup returns the provider for a generation type.
func (r *Registry) Lookup(t models.GenerationType) (Provider, error) {
	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("no provider for generation type %q", t)
	}
	return p, nil
}

// Register replaces the provider for a type; used by tests.
func (r *Registry) Register(t models.GenerationType, p Provider) {
	r.providers[t] = p
}

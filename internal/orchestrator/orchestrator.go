// Package orchestrator accepts generation requests, reserves their cost, and
// drives each accepted job to a terminal state in a detached goroutine. The
// caller gets a job id back immediately; everything after that is observable
// only through the record's status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/generations"
	"github.com/sanhub/backend/internal/ledger"
	"github.com/sanhub/backend/internal/media"
	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/provider"
)

var (
	// ErrUnknownUser rejects submissions from users that do not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUserDisabled rejects submissions from disabled accounts.
	ErrUserDisabled = errors.New("account disabled")
	// ErrInsufficientBalance rejects submissions the user cannot afford.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidRequest rejects malformed submissions.
	ErrInvalidRequest = errors.New("invalid generation request")
)

// jobTimeout bounds a single generation end to end; the provider poll loops
// have their own stall detection underneath it.
const jobTimeout = 30 * time.Minute

// SubmitRequest is a validated generation submission.
type SubmitRequest struct {
	Type   models.GenerationType `validate:"required"`
	Prompt string                `validate:"required,min=1,max=4000"`
	Model  string                `validate:"max=128"`
	Params map[string]any
	Files  []provider.FilePayload
}

// UserLoader is the slice of the users repository the orchestrator needs.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Orchestrator wires the pipeline: record store, credit ledger, providers,
// and the media resolution chain.
type Orchestrator struct {
	gens     generations.Service
	ledger   ledger.Service
	users    UserLoader
	registry *provider.Registry
	store    *media.Store
	system   *config.SystemStore
	validate *validator.Validate
	log      *slog.Logger
}

func New(gens generations.Service, led ledger.Service, users UserLoader,
	registry *provider.Registry, store *media.Store, system *config.SystemStore,
	log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		gens:     gens,
		ledger:   led,
		users:    users,
		registry: registry,
		store:    store,
		system:   system,
		validate: validator.New(),
		log:      log,
	}
}

// Submit validates the request, fixes its cost, inserts the pending record,
// and launches the detached worker. The returned record is still pending;
// the debit happens only if the job later completes.
func (o *Orchestrator) Submit(ctx context.Context, userID string, req SubmitRequest) (*models.Generation, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Type.Valid() || req.Type == models.TypeChat {
		return nil, fmt.Errorf("%w: unsupported generation type %q", ErrInvalidRequest, req.Type)
	}

	user, err := o.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUnknownUser
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	cfg, err := o.system.Get(ctx)
	if err != nil {
		return nil, err
	}
	cost := ResolveCost(cfg.Pricing, req.Type, req.Model)

	// Pre-check only; the authoritative rejection is the strict debit at
	// completion time.
	if user.Balance < cost {
		return nil, ErrInsufficientBalance
	}

	gen := &models.Generation{
		UserID: userID,
		Type:   req.Type,
		Prompt: req.Prompt,
		Params: params(req),
		Cost:   cost,
	}
	if err := o.gens.Create(ctx, gen); err != nil {
		return nil, err
	}

	go o.run(gen, req)
	return gen, nil
}

func params(req SubmitRequest) map[string]any {
	p := map[string]any{}
	for k, v := range req.Params {
		p[k] = v
	}
	if req.Model != "" {
		p["model"] = req.Model
	}
	return p
}

// ResolveCost maps a generation type and model variant onto the pricing
// table. Unknown variants take the cheaper price for their type.
func ResolveCost(pricing config.Pricing, t models.GenerationType, model string) int64 {
	switch t {
	case models.TypeSoraVideo:
		if strings.Contains(model, "15") {
			return pricing.SoraVideo15s
		}
		return pricing.SoraVideo10s
	case models.TypeSoraImage:
		return pricing.SoraImage
	case models.TypeGeminiImage:
		if strings.Contains(model, "pro") {
			return pricing.GeminiPro
		}
		return pricing.GeminiNano
	case models.TypeZImageImage:
		return pricing.ZImageImage
	case models.TypeChat:
		return pricing.Chat
	}
	return 0
}

// run drives one job to a terminal state. It owns its own context: the
// submitting request's context dies with the HTTP response, the job must
// not.
func (o *Orchestrator) run(gen *models.Generation, req SubmitRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	// The submitting handler still holds the returned record and may be
	// serializing its params; the worker mutates only its own copy.
	params := maps.Clone(gen.Params)

	finished := false
	defer func() {
		r := recover()
		if r != nil {
			o.log.Error("generation worker panicked", "generation_id", gen.ID, "panic", r)
		}
		if !finished {
			// Last line of defense: the record must not stay in-flight
			// forever. A stale guard makes this a no-op if a terminal write
			// already landed, and the write is detached from the job context
			// so an expired deadline cannot swallow it.
			if err := o.gens.Fail(context.WithoutCancel(ctx), gen.ID, "internal error"); err != nil {
				o.log.Error("finalize failed record", "generation_id", gen.ID, "error", err)
			}
		}
	}()

	if err := o.gens.MarkProcessing(ctx, gen.ID); err != nil {
		o.log.Error("mark processing failed", "generation_id", gen.ID, "error", err)
		return
	}

	prov, err := o.registry.Lookup(gen.Type)
	if err != nil {
		o.fail(ctx, gen.ID, err)
		finished = true
		return
	}

	lastProgress := 0
	onProgress := func(p int) {
		if p < 0 {
			return
		}
		if p > 100 {
			p = 100
		}
		next, err := o.gens.Progress(ctx, gen.ID, params, lastProgress, p)
		if err != nil {
			o.log.Warn("persist progress failed", "generation_id", gen.ID, "error", err)
			return
		}
		lastProgress = next
	}

	result, err := prov.Generate(ctx, provider.Request{
		Type:   gen.Type,
		Prompt: gen.Prompt,
		Model:  req.Model,
		Params: params,
		Files:  req.Files,
	}, onProgress)
	if err != nil {
		o.fail(ctx, gen.ID, err)
		finished = true
		return
	}

	// The outcome is decided; the remaining writes must land even if the
	// job deadline expires underneath them.
	ctx = context.WithoutCancel(ctx)

	ref, err := o.store.Persist(ctx, gen.ID, result.URL)
	if err != nil {
		o.fail(ctx, gen.ID, fmt.Errorf("store result: %w", err))
		finished = true
		return
	}

	// The only debit for this record. Strict policy: if the balance has
	// drained since the pre-check, the job fails and nothing is charged.
	if _, err := o.ledger.UpdateBalance(ctx, gen.UserID, -gen.Cost, ledger.PolicyStrict); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			o.fail(ctx, gen.ID, errors.New("insufficient balance at completion"))
		} else {
			o.fail(ctx, gen.ID, fmt.Errorf("debit failed: %w", err))
		}
		finished = true
		return
	}

	if err := o.gens.Complete(ctx, gen.ID, ref, params); err != nil {
		// The user has been charged; a stuck in-flight record would hide
		// that. Surface the failure on the record.
		o.log.Error("mark completed failed", "generation_id", gen.ID, "error", err)
		o.fail(ctx, gen.ID, errors.New("failed to record completion"))
		finished = true
		return
	}

	o.log.Info("generation completed",
		"generation_id", gen.ID, "user_id", gen.UserID, "type", gen.Type, "cost", gen.Cost)
	finished = true
}

func (o *Orchestrator) fail(ctx context.Context, id string, cause error) {
	// A job that died of its own timeout must still record the failure, so
	// the terminal write runs detached from the job context.
	ctx = context.WithoutCancel(ctx)
	o.log.Warn("generation failed", "generation_id", id, "error", cause)
	if err := o.gens.Fail(ctx, id, cause.Error()); err != nil {
		o.log.Error("mark failed errored", "generation_id", id, "error", err)
	}
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sanhub/backend/internal/config"
	"github.com/sanhub/backend/internal/db"
	"github.com/sanhub/backend/internal/generations"
	"github.com/sanhub/backend/internal/ledger"
	"github.com/sanhub/backend/internal/media"
	"github.com/sanhub/backend/internal/models"
	"github.com/sanhub/backend/internal/provider"
)

// ---------------------------------------------------------------------------
// In-memory mocks. They reproduce the guard semantics of the real stores so
// the orchestrator's terminal-state and single-debit guarantees are testable
// without a database.
// ---------------------------------------------------------------------------

type mockGens struct {
	mu      sync.Mutex
	records map[string]*models.Generation
}

func newMockGens() *mockGens {
	return &mockGens{records: make(map[string]*models.Generation)}
}

var _ generations.Service = (*mockGens)(nil)

func (m *mockGens) Create(_ context.Context, gen *models.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen.ID = uuid.NewString()
	gen.Status = models.StatusPending
	if gen.Params == nil {
		gen.Params = map[string]any{}
	}
	// The real repository serializes params, so stored records never share
	// a map with the caller.
	cp := *gen
	cp.Params = maps.Clone(gen.Params)
	m.records[gen.ID] = &cp
	return nil
}

func (m *mockGens) Get(_ context.Context, id string) (*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.records[id]
	if !ok {
		return nil, generations.ErrNotFound
	}
	cp := *g
	cp.Params = maps.Clone(g.Params)
	return &cp, nil
}

func (m *mockGens) ListByUser(_ context.Context, userID string, _, _ int) ([]*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Generation
	for _, g := range m.records {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockGens) ListActive(ctx context.Context, userID string, _ int) ([]*models.Generation, error) {
	all, _ := m.ListByUser(ctx, userID, 0, 0)
	var out []*models.Generation
	for _, g := range all {
		if !g.Status.Terminal() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockGens) MarkProcessing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.records[id]; ok && g.Status == models.StatusPending {
		g.Status = models.StatusProcessing
	}
	return nil
}

func (m *mockGens) Progress(_ context.Context, id string, params map[string]any, last, current int) (int, error) {
	if current-last < 5 && current < 100 {
		return last, nil
	}
	// Like the real service, the update lands in the caller's params bag.
	if params == nil {
		params = map[string]any{}
	}
	params["progress"] = current
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.records[id]; ok && !g.Status.Terminal() {
		g.Params = maps.Clone(params)
	}
	return current, nil
}

func (m *mockGens) Complete(_ context.Context, id, resultURL string, _ map[string]any) error {
	if resultURL == "" {
		return generations.ErrEmptyResult
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.records[id]; ok && !g.Status.Terminal() {
		g.Status = models.StatusCompleted
		g.ResultURL = resultURL
	}
	return nil
}

func (m *mockGens) Fail(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.records[id]; ok && !g.Status.Terminal() {
		g.Status = models.StatusFailed
		g.ErrorMessage = message
	}
	return nil
}

// ---

type mockLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	debits   int
}

var _ ledger.Service = (*mockLedger)(nil)

func (m *mockLedger) UpdateBalance(_ context.Context, userID string, delta int64, policy ledger.Policy) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	next := bal + delta
	if next < 0 {
		if policy == ledger.PolicyStrict {
			return bal, ledger.ErrInsufficientBalance
		}
		next = 0
	}
	if delta < 0 {
		m.debits++
	}
	m.balances[userID] = next
	return next, nil
}

func (m *mockLedger) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *mockLedger) debitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debits
}

func (m *mockLedger) drain(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = 0
}

// ---

type mockUsers struct {
	users map[string]*models.User
}

func (m *mockUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	cp := *u
	return &cp, nil
}

// ---

type mockProvider struct {
	generate func(ctx context.Context, req provider.Request, onProgress provider.ProgressFunc) (*provider.Result, error)
}

func (m *mockProvider) Generate(ctx context.Context, req provider.Request, onProgress provider.ProgressFunc) (*provider.Result, error) {
	return m.generate(ctx, req, onProgress)
}

// emptyAdapter satisfies db.Adapter with no rows, which makes the system
// store fall back to its built-in defaults.
type emptyAdapter struct{}

func (emptyAdapter) Execute(context.Context, string, ...any) ([]db.Row, db.Meta, error) {
	return nil, db.Meta{}, nil
}
func (emptyAdapter) Close() error { return nil }

// ---------------------------------------------------------------------------
// Test fixture
// ---------------------------------------------------------------------------

type fixture struct {
	orch   *Orchestrator
	gens   *mockGens
	ledger *mockLedger
}

func newFixture(t *testing.T, balance int64, p provider.Provider) *fixture {
	t.Helper()
	gens := newMockGens()
	led := &mockLedger{balances: map[string]int64{"u1": balance}}
	users := &mockUsers{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "a@b.c", Role: models.RoleUser, Balance: balance},
	}}
	system := config.NewSystemStore(emptyAdapter{})
	registry := provider.NewRegistry(system.Get)
	registry.Register(models.TypeSoraImage, p)
	store := media.NewStore(t.TempDir(), nil, slog.Default())

	return &fixture{
		orch:   New(gens, led, users, registry, store, system, slog.Default()),
		gens:   gens,
		ledger: led,
	}
}

func submit(t *testing.T, f *fixture) *models.Generation {
	t.Helper()
	gen, err := f.orch.Submit(context.Background(), "u1", SubmitRequest{
		Type:   models.TypeSoraImage,
		Prompt: "a lighthouse at dawn",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return gen
}

// waitTerminal polls until the record reaches a terminal state; the worker
// runs in its own goroutine.
func waitTerminal(t *testing.T, gens *mockGens, id string) *models.Generation {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		g, err := gens.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if g.Status.Terminal() {
			return g
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("record %s never reached a terminal state", id)
	return nil
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestSuccessDebitsExactlyOnce(t *testing.T) {
	okProvider := &mockProvider{generate: func(_ context.Context, _ provider.Request, onProgress provider.ProgressFunc) (*provider.Result, error) {
		onProgress(50)
		onProgress(100)
		return &provider.Result{URL: "https://host.example/out.png"}, nil
	}}
	f := newFixture(t, 100, okProvider)

	gen := submit(t, f)
	if gen.Cost != 50 {
		t.Fatalf("reserved cost: got %d, want 50", gen.Cost)
	}

	final := waitTerminal(t, f.gens, gen.ID)
	if final.Status != models.StatusCompleted {
		t.Fatalf("status: got %s (%s), want completed", final.Status, final.ErrorMessage)
	}
	if final.ResultURL != "https://host.example/out.png" {
		t.Errorf("result url: got %q", final.ResultURL)
	}
	if got := f.ledger.balance("u1"); got != 50 {
		t.Errorf("balance after completion: got %d, want 50", got)
	}
	if got := f.ledger.debitCount(); got != 1 {
		t.Errorf("debits: got %d, want exactly 1", got)
	}
}

func TestProviderFailureChargesNothing(t *testing.T) {
	f := newFixture(t, 100, &mockProvider{generate: func(context.Context, provider.Request, provider.ProgressFunc) (*provider.Result, error) {
		return nil, errors.New("upstream exploded")
	}})

	gen := submit(t, f)
	final := waitTerminal(t, f.gens, gen.ID)
	if final.Status != models.StatusFailed {
		t.Fatalf("status: got %s, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "upstream exploded") {
		t.Errorf("error message: got %q", final.ErrorMessage)
	}
	if got := f.ledger.balance("u1"); got != 100 {
		t.Errorf("balance must be untouched on failure: got %d, want 100", got)
	}
	if got := f.ledger.debitCount(); got != 0 {
		t.Errorf("debits: got %d, want 0", got)
	}
}

// The balance pre-check at submit is only advisory: if the balance drains
// while the job runs, the strict debit rejects and the record fails.
func TestBalanceDrainedDuringRun(t *testing.T) {
	var f *fixture
	f = newFixture(t, 100, &mockProvider{generate: func(context.Context, provider.Request, provider.ProgressFunc) (*provider.Result, error) {
		f.ledger.drain("u1")
		return &provider.Result{URL: "https://host.example/out.png"}, nil
	}})

	gen := submit(t, f)
	final := waitTerminal(t, f.gens, gen.ID)
	if final.Status != models.StatusFailed {
		t.Fatalf("status: got %s, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "insufficient balance") {
		t.Errorf("error message: got %q", final.ErrorMessage)
	}
	if got := f.ledger.balance("u1"); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
}

func TestPanicLeavesTerminalRecord(t *testing.T) {
	f := newFixture(t, 100, &mockProvider{generate: func(context.Context, provider.Request, provider.ProgressFunc) (*provider.Result, error) {
		panic("provider bug")
	}})

	gen := submit(t, f)
	final := waitTerminal(t, f.gens, gen.ID)
	if final.Status != models.StatusFailed {
		t.Fatalf("status after panic: got %s, want failed", final.Status)
	}
	if got := f.ledger.balance("u1"); got != 100 {
		t.Errorf("balance after panic: got %d, want 100", got)
	}
}

func TestInlineResultFallsBackToLocalFile(t *testing.T) {
	// 1x1 transparent PNG.
	const payload = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
	f := newFixture(t, 100, &mockProvider{generate: func(context.Context, provider.Request, provider.ProgressFunc) (*provider.Result, error) {
		return &provider.Result{URL: "data:image/png;base64," + payload}, nil
	}})

	gen := submit(t, f)
	final := waitTerminal(t, f.gens, gen.ID)
	if final.Status != models.StatusCompleted {
		t.Fatalf("status: got %s (%s), want completed", final.Status, final.ErrorMessage)
	}
	if !media.IsLocal(final.ResultURL) {
		t.Errorf("result should be a local reference, got %q", final.ResultURL)
	}
}

func TestSubmitRejections(t *testing.T) {
	noop := &mockProvider{generate: func(context.Context, provider.Request, provider.ProgressFunc) (*provider.Result, error) {
		return &provider.Result{URL: "https://host.example/out.png"}, nil
	}}

	t.Run("empty prompt", func(t *testing.T) {
		f := newFixture(t, 100, noop)
		_, err := f.orch.Submit(context.Background(), "u1", SubmitRequest{Type: models.TypeSoraImage})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, got: %v", err)
		}
	})

	t.Run("chat type goes through the synchronous flow", func(t *testing.T) {
		f := newFixture(t, 100, noop)
		_, err := f.orch.Submit(context.Background(), "u1", SubmitRequest{Type: models.TypeChat, Prompt: "hi"})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, got: %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, 100, noop)
		_, err := f.orch.Submit(context.Background(), "ghost", SubmitRequest{Type: models.TypeSoraImage, Prompt: "hi"})
		if !errors.Is(err, ErrUnknownUser) {
			t.Errorf("expected ErrUnknownUser, got: %v", err)
		}
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f := newFixture(t, 10, noop)
		_, err := f.orch.Submit(context.Background(), "u1", SubmitRequest{Type: models.TypeSoraImage, Prompt: "hi"})
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("expected ErrInsufficientBalance, got: %v", err)
		}
	})
}

// The handler encodes the submitted record while the worker reports
// progress; the two must never share the params map.
func TestSubmittedRecordIsIsolatedFromWorker(t *testing.T) {
	progressing := &mockProvider{generate: func(_ context.Context, _ provider.Request, onProgress provider.ProgressFunc) (*provider.Result, error) {
		for p := 0; p <= 100; p += 10 {
			onProgress(p)
		}
		return &provider.Result{URL: "https://host.example/out.png"}, nil
	}}
	f := newFixture(t, 100, progressing)
	gen := submit(t, f)

	// Serialize the returned record the way the HTTP handler does, over and
	// over, while the worker runs.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := json.Marshal(gen.Params); err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		g, err := f.gens.Get(context.Background(), gen.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if g.Status.Terminal() {
			break
		}
	}
	if _, ok := gen.Params["progress"]; ok {
		t.Error("worker progress writes leaked into the submitted record")
	}
}

// A job that dies of its own timeout must still record the failure; the
// terminal write cannot run on the dead job context.
func TestFailRecordsTerminalStateOnDeadContext(t *testing.T) {
	adapter, err := db.NewSQLiteAdapter(db.Config{SQLitePath: filepath.Join(t.TempDir(), "orch.db")})
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })
	ctx := context.Background()
	if err := db.Init(ctx, adapter); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	gens := generations.NewService(generations.NewRepository(adapter))
	system := config.NewSystemStore(adapter)
	orch := New(gens, &mockLedger{balances: map[string]int64{}}, &mockUsers{},
		provider.NewRegistry(system.Get), media.NewStore(t.TempDir(), nil, slog.Default()),
		system, slog.Default())

	gen := &models.Generation{UserID: "u1", Type: models.TypeSoraImage, Prompt: "x"}
	if err := gens.Create(ctx, gen); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := gens.MarkProcessing(ctx, gen.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	dead, cancel := context.WithCancel(context.Background())
	cancel()
	orch.fail(dead, gen.ID, errors.New("generation timed out"))

	g, err := gens.Get(ctx, gen.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.Status != models.StatusFailed {
		t.Fatalf("status: got %s, want failed", g.Status)
	}
	if !strings.Contains(g.ErrorMessage, "timed out") {
		t.Errorf("error message: got %q", g.ErrorMessage)
	}
}

func TestResolveCost(t *testing.T) {
	pricing := config.Pricing{
		SoraVideo10s: 100, SoraVideo15s: 150, SoraImage: 50,
		GeminiNano: 10, GeminiPro: 30, ZImageImage: 30, Chat: 1,
	}
	cases := []struct {
		t     models.GenerationType
		model string
		want  int64
	}{
		{models.TypeSoraVideo, "sora-video-10s", 100},
		{models.TypeSoraVideo, "sora-video-15s", 150},
		{models.TypeSoraVideo, "", 100},
		{models.TypeSoraImage, "", 50},
		{models.TypeGeminiImage, "gemini-nano-banana", 10},
		{models.TypeGeminiImage, "gemini-3-pro-image", 30},
		{models.TypeZImageImage, "z-image-turbo", 30},
		{models.TypeChat, "", 1},
	}
	for _, tc := range cases {
		if got := ResolveCost(pricing, tc.t, tc.model); got != tc.want {
			t.Errorf("ResolveCost(%s, %q): got %d, want %d", tc.t, tc.model, got, tc.want)
		}
	}
}

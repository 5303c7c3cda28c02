package generations

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sanhub/backend/internal/db"
	"github.com/sanhub/backend/internal/models"
)

func setup(t *testing.T) Service {
	t.Helper()
	adapter, err := db.NewSQLiteAdapter(db.Config{SQLitePath: filepath.Join(t.TempDir(), "gens.db")})
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })
	if err := db.Init(context.Background(), adapter); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return NewService(NewRepository(adapter))
}

func create(t *testing.T, svc Service) *models.Generation {
	t.Helper()
	gen := &models.Generation{
		UserID: "u1",
		Type:   models.TypeSoraVideo,
		Prompt: "a cat surfing",
		Cost:   100,
	}
	if err := svc.Create(context.Background(), gen); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return gen
}

func TestLifecycle(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	gen := create(t, svc)

	if gen.Status != models.StatusPending {
		t.Fatalf("status after create: got %s, want pending", gen.Status)
	}

	if err := svc.MarkProcessing(ctx, gen.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	got, err := svc.Get(ctx, gen.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusProcessing {
		t.Errorf("status: got %s, want processing", got.Status)
	}

	if err := svc.Complete(ctx, gen.ID, "https://host.example/r.png", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = svc.Get(ctx, gen.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("status: got %s, want completed", got.Status)
	}
	if got.ResultURL != "https://host.example/r.png" {
		t.Errorf("result url: got %q", got.ResultURL)
	}
	if got.Cost != 100 {
		t.Errorf("cost must stay fixed: got %d, want 100", got.Cost)
	}
}

// Terminal states are sticky: a stale Fail after Complete (and vice versa)
// must be a silent no-op.
func TestTerminalStatesAreSticky(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	gen := create(t, svc)
	if err := svc.Complete(ctx, gen.ID, "https://host.example/r.png", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := svc.Fail(ctx, gen.ID, "late failure"); err != nil {
		t.Fatalf("stale Fail should be a no-op, got: %v", err)
	}
	got, _ := svc.Get(ctx, gen.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("status after stale Fail: got %s, want completed", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message should stay empty, got %q", got.ErrorMessage)
	}

	gen2 := create(t, svc)
	if err := svc.Fail(ctx, gen2.ID, "provider exploded"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := svc.Complete(ctx, gen2.ID, "https://host.example/late.png", nil); err != nil {
		t.Fatalf("stale Complete should be a no-op, got: %v", err)
	}
	got2, _ := svc.Get(ctx, gen2.ID)
	if got2.Status != models.StatusFailed {
		t.Errorf("status after stale Complete: got %s, want failed", got2.Status)
	}
	if got2.ResultURL != "" {
		t.Errorf("result url should stay empty, got %q", got2.ResultURL)
	}
}

func TestCompleteRequiresResult(t *testing.T) {
	svc := setup(t)
	gen := create(t, svc)
	if err := svc.Complete(context.Background(), gen.ID, "", nil); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("expected ErrEmptyResult, got: %v", err)
	}
}

// Progress writes are throttled: only advances of five points or more (or
// reaching 100) hit storage.
func TestProgressThrottle(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	gen := create(t, svc)
	if err := svc.MarkProcessing(ctx, gen.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	last := 0
	for _, step := range []struct {
		current  int
		expected int
	}{
		{2, 0},    // below threshold, dropped
		{4, 0},    // still below
		{5, 5},    // crosses threshold, persisted
		{7, 5},    // dropped
		{12, 12},  // persisted
		{100, 100}, // terminal progress always persisted
	} {
		next, err := svc.Progress(ctx, gen.ID, gen.Params, last, step.current)
		if err != nil {
			t.Fatalf("Progress(%d): %v", step.current, err)
		}
		if next != step.expected {
			t.Errorf("watermark after %d: got %d, want %d", step.current, next, step.expected)
		}
		last = next
	}

	got, _ := svc.Get(ctx, gen.ID)
	if v, ok := got.Params["progress"].(float64); !ok || v != 100 {
		t.Errorf("stored progress: got %v, want 100", got.Params["progress"])
	}
}

func TestListActive(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	active := create(t, svc)
	done := create(t, svc)
	if err := svc.Complete(ctx, done.ID, "https://host.example/r.png", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	list, err := svc.ListActive(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].ID != active.ID {
		t.Errorf("ListActive should return only the pending record, got %d rows", len(list))
	}
}

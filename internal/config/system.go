package config

import (
	"context"
	"sync"
	"time"

	"github.com/sanhub/backend/internal/db"
)

// Pricing is the credit cost table for each provider variant.
type Pricing struct {
	SoraVideo10s int64 `json:"sora_video_10s"`
	SoraVideo15s int64 `json:"sora_video_15s"`
	SoraImage    int64 `json:"sora_image"`
	GeminiNano   int64 `json:"gemini_nano"`
	GeminiPro    int64 `json:"gemini_pro"`
	ZImageImage  int64 `json:"zimage_image"`
	Chat         int64 `json:"chat"`
}

// System is the runtime-tunable configuration stored in the system_config
// row: provider endpoints and keys, pricing, and registration settings.
type System struct {
	SoraAPIKey      string  `json:"sora_api_key"`
	SoraBaseURL     string  `json:"sora_base_url"`
	GeminiAPIKey    string  `json:"gemini_api_key"`
	GeminiBaseURL   string  `json:"gemini_base_url"`
	ZImageAPIKey    string  `json:"zimage_api_key"`
	ZImageBaseURL   string  `json:"zimage_base_url"`
	PicUIAPIKey     string  `json:"picui_api_key"`
	PicUIBaseURL    string  `json:"picui_base_url"`
	Pricing         Pricing `json:"pricing"`
	RegisterEnabled bool    `json:"register_enabled"`
	DefaultBalance  int64   `json:"default_balance"`
}

const systemCacheTTL = 30 * time.Second

// SystemStore reads the system_config row through a TTL cache. Updates go
// through Update, which invalidates the cache, so stale reads are bounded by
// the TTL in the worst case and absent in the single-process case.
type SystemStore struct {
	db db.Adapter

	mu        sync.Mutex
	cached    *System
	expiresAt time.Time
}

func NewSystemStore(adapter db.Adapter) *SystemStore {
	return &SystemStore{db: adapter}
}

// Get returns the current system configuration snapshot.
func (s *SystemStore) Get(ctx context.Context) (*System, error) {
	s.mu.Lock()
	if s.cached != nil && time.Now().Before(s.expiresAt) {
		cfg := *s.cached
		s.mu.Unlock()
		return &cfg, nil
	}
	s.mu.Unlock()

	rows, _, err := s.db.Execute(ctx, "SELECT * FROM system_config WHERE id = 1")
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if len(rows) > 0 {
		fromRow(rows[0], cfg)
	}

	s.mu.Lock()
	snapshot := *cfg
	s.cached = &snapshot
	s.expiresAt = time.Now().Add(systemCacheTTL)
	s.mu.Unlock()
	return cfg, nil
}

// Invalidate drops the cached snapshot; the next Get re-reads the row.
func (s *SystemStore) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// columns maps struct-level updates onto their storage columns.
type columnValue struct {
	column string
	value  any
}

// Update writes the given column values and invalidates the cache.
func (s *SystemStore) Update(ctx context.Context, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	stmt := "UPDATE system_config SET "
	params := make([]any, 0, len(updates))
	first := true
	for _, cv := range orderUpdates(updates) {
		if !first {
			stmt += ", "
		}
		stmt += cv.column + " = ?"
		params = append(params, cv.value)
		first = false
	}
	stmt += " WHERE id = 1"
	if _, _, err := s.db.Execute(ctx, stmt, params...); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// updatableColumns is the allowlist of columns Update accepts; anything else
// in the incoming map is ignored.
var updatableColumns = []string{
	"sora_api_key", "sora_base_url",
	"gemini_api_key", "gemini_base_url",
	"zimage_api_key", "zimage_base_url",
	"picui_api_key", "picui_base_url",
	"pricing_sora_video_10s", "pricing_sora_video_15s", "pricing_sora_image",
	"pricing_gemini_nano", "pricing_gemini_pro", "pricing_zimage_image", "pricing_chat",
	"register_enabled", "default_balance",
}

func orderUpdates(updates map[string]any) []columnValue {
	out := make([]columnValue, 0, len(updates))
	for _, col := range updatableColumns {
		if v, ok := updates[col]; ok {
			out = append(out, columnValue{column: col, value: v})
		}
	}
	return out
}

func defaults() *System {
	return &System{
		SoraBaseURL:   "http://localhost:8000",
		GeminiBaseURL: "https://generativelanguage.googleapis.com",
		ZImageBaseURL: "https://api-inference.modelscope.cn/",
		PicUIBaseURL:  "https://picui.cn/api/v1",
		Pricing: Pricing{
			SoraVideo10s: 100,
			SoraVideo15s: 150,
			SoraImage:    50,
			GeminiNano:   10,
			GeminiPro:    30,
			ZImageImage:  30,
			Chat:         1,
		},
		RegisterEnabled: true,
		DefaultBalance:  100,
	}
}

func fromRow(row db.Row, cfg *System) {
	cfg.SoraAPIKey = row.String("sora_api_key")
	if v := row.String("sora_base_url"); v != "" {
		cfg.SoraBaseURL = v
	}
	cfg.GeminiAPIKey = row.String("gemini_api_key")
	if v := row.String("gemini_base_url"); v != "" {
		cfg.GeminiBaseURL = v
	}
	cfg.ZImageAPIKey = row.String("zimage_api_key")
	if v := row.String("zimage_base_url"); v != "" {
		cfg.ZImageBaseURL = v
	}
	cfg.PicUIAPIKey = row.String("picui_api_key")
	if v := row.String("picui_base_url"); v != "" {
		cfg.PicUIBaseURL = v
	}
	cfg.Pricing.SoraVideo10s = intOr(row, "pricing_sora_video_10s", cfg.Pricing.SoraVideo10s)
	cfg.Pricing.SoraVideo15s = intOr(row, "pricing_sora_video_15s", cfg.Pricing.SoraVideo15s)
	cfg.Pricing.SoraImage = intOr(row, "pricing_sora_image", cfg.Pricing.SoraImage)
	cfg.Pricing.GeminiNano = intOr(row, "pricing_gemini_nano", cfg.Pricing.GeminiNano)
	cfg.Pricing.GeminiPro = intOr(row, "pricing_gemini_pro", cfg.Pricing.GeminiPro)
	cfg.Pricing.ZImageImage = intOr(row, "pricing_zimage_image", cfg.Pricing.ZImageImage)
	cfg.Pricing.Chat = intOr(row, "pricing_chat", cfg.Pricing.Chat)
	cfg.RegisterEnabled = row.Bool("register_enabled")
	cfg.DefaultBalance = intOr(row, "default_balance", cfg.DefaultBalance)
}

// intOr reads an integer column, falling back only when the column is absent
// or NULL. An explicit zero is a real value, not a request for the default.
func intOr(row db.Row, col string, fallback int64) int64 {
	if v, ok := row[col]; ok && v != nil {
		return row.Int64(col)
	}
	return fallback
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Generation upstreams can take minutes; the client timeout covers a single
// request, not the whole job.
var httpClient = &http.Client{Timeout: 5 * time.Minute}

const (
	retryMax     = 3
	retryBase    = 1500 * time.Millisecond
	retryCeiling = 10 * time.Second
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) text() string {
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// doJSON sends a request and decodes the body, retrying on 429 with
// exponential backoff and jitter. build must return a fresh request each
// attempt because bodies are consumed.
func doJSON(ctx context.Context, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			delay := retryBase << (attempt - 1)
			if delay > retryCeiling {
				delay = retryCeiling
			}
			delay += time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := build()
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("upstream rate limited (429)")
			continue
		}
		if resp.StatusCode >= 400 {
			var e apiError
			_ = json.Unmarshal(body, &e)
			if msg := e.text(); msg != "" {
				return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, msg)
			}
			return fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode upstream response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("upstream request failed after %d retries: %w", retryMax, lastErr)
}

func jsonRequest(ctx context.Context, method, url, apiKey string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}

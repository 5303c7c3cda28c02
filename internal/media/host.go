package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// SystemConfig supplies the host credentials at call time, so admin updates
// to the key or base URL take effect without a restart.
type SystemConfig interface {
	HostCredentials(ctx context.Context) (apiKey, baseURL string, err error)
}

// ImageHost uploads payloads to the external image-hosting service over its
// multipart upload endpoint. A missing API key disables the host, which
// shifts every image to local storage.
type ImageHost struct {
	cfg    SystemConfig
	client *http.Client
}

func NewImageHost(cfg SystemConfig) *ImageHost {
	return &ImageHost{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Host = (*ImageHost)(nil)

type hostUploadResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Links struct {
			URL string `json:"url"`
		} `json:"links"`
	} `json:"data"`
}

// Upload sends the payload to {base}/upload with a bearer key. It returns an
// empty URL without error when the host is not configured.
func (h *ImageHost) Upload(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	apiKey, baseURL, err := h.cfg.HostCredentials(ctx)
	if err != nil {
		return "", err
	}
	if apiKey == "" {
		return "", nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := strings.TrimSuffix(baseURL, "/") + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image host returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed hostUploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode image host response: %w", err)
	}
	if !parsed.Status || parsed.Data.Links.URL == "" {
		return "", fmt.Errorf("image host rejected upload: %s", parsed.Message)
	}
	return parsed.Data.Links.URL, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

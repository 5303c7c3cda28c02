package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes caps a proxied remote media payload.
const maxFetchBytes = 10 << 20

// ErrTooLarge is returned when a remote payload exceeds maxFetchBytes.
var ErrTooLarge = errors.New("remote media exceeds size limit")

// ErrBadContentType is returned when the remote response is not media.
var ErrBadContentType = errors.New("remote content is not media")

var fetchClient = &http.Client{Timeout: 60 * time.Second}

// Fetch downloads a remote media URL with a size ceiling and a content-type
// allowlist, so the media endpoint cannot be used as an open proxy for
// arbitrary content.
func Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("remote host returned %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !allowedContentType(contentType) {
		return nil, "", ErrBadContentType
	}
	if resp.ContentLength > maxFetchBytes {
		return nil, "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxFetchBytes {
		return nil, "", ErrTooLarge
	}
	return data, contentType, nil
}

func allowedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/")
}

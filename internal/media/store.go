// Package media converts a provider's raw result into a durable,
// re-fetchable reference. Images prefer the external object host and fall
// back to local file storage; video URLs pass through untouched because of
// their size.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// LocalPrefix marks a reference stored under the local media directory.
const LocalPrefix = "file:"

var dataURLRe = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// ErrNotFound is returned when a local reference points at a missing file.
var ErrNotFound = errors.New("media file not found")

var extByMime = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
	"video/mp4":  "mp4",
	"video/webm": "webm",
}

var mimeByExt = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"webm": "video/webm",
}

// Host uploads a payload to the external object-hosting service. An empty
// URL with nil error means the host declined (e.g. not configured); both
// trigger the local fallback.
type Host interface {
	Upload(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

// Store is the media resolution chain.
type Store struct {
	dir  string
	host Host
	log  *slog.Logger
}

// NewStore roots local storage at <dataDir>/media. host may be nil, in which
// case every image lands in local storage.
func NewStore(dataDir string, host Host, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: filepath.Join(dataDir, "media"), host: host, log: log}
}

// Persist resolves raw into a durable reference for the given job. Remote
// URLs pass through (covers the video bypass); inline base64 payloads are
// uploaded to the host, falling back to a local file named by job id.
func (s *Store) Persist(ctx context.Context, jobID, raw string) (string, error) {
	if !strings.HasPrefix(raw, "data:") {
		return raw, nil
	}
	mimeType, data, err := parseDataURL(raw)
	if err != nil {
		return "", err
	}
	ext := extensionFor(mimeType)

	if s.host != nil {
		url, err := s.host.Upload(ctx, data, mimeType, jobID+"."+ext)
		if err != nil {
			s.log.Warn("media host upload failed, falling back to local storage",
				"job_id", jobID, "error", err)
		} else if url != "" {
			return url, nil
		}
	}
	return s.saveLocal(jobID, ext, data)
}

func (s *Store) saveLocal(jobID, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	filename := jobID + "." + ext
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", err
	}
	return LocalPrefix + filename, nil
}

// Read returns the bytes and content type behind a local-file reference.
func (s *Store) Read(identifier string) ([]byte, string, error) {
	filename := strings.TrimPrefix(identifier, LocalPrefix)
	// Reject traversal; references are flat filenames keyed by job id.
	filename = filepath.Base(filename)

	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	mimeType := mimeByExt[ext]
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return data, mimeType, nil
}

// Delete removes a local file; non-local references are left alone.
func (s *Store) Delete(identifier string) bool {
	if !IsLocal(identifier) {
		return false
	}
	filename := filepath.Base(strings.TrimPrefix(identifier, LocalPrefix))
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil {
		return false
	}
	return true
}

// IsLocal reports whether the reference lives in local storage.
func IsLocal(identifier string) bool {
	return strings.HasPrefix(identifier, LocalPrefix)
}

// IsInline reports whether the reference is an inline base64 payload.
func IsInline(identifier string) bool {
	return strings.HasPrefix(identifier, "data:")
}

func parseDataURL(raw string) (mimeType string, data []byte, err error) {
	m := dataURLRe.FindStringSubmatch(raw)
	if m == nil {
		return "", nil, fmt.Errorf("invalid data URL")
	}
	decoded, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return m[1], decoded, nil
}

func extensionFor(mimeType string) string {
	if ext, ok := extByMime[mimeType]; ok {
		return ext
	}
	return "bin"
}

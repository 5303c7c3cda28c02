package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

// pngPayload is a 1x1 transparent PNG.
var pngPayload, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

func dataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngPayload)
}

type fakeHost struct {
	url  string
	err  error
	seen []string
}

func (f *fakeHost) Upload(_ context.Context, _ []byte, _ string, filename string) (string, error) {
	f.seen = append(f.seen, filename)
	return f.url, f.err
}

func TestPersistPassesThroughRemoteURLs(t *testing.T) {
	store := NewStore(t.TempDir(), nil, nil)
	ref, err := store.Persist(context.Background(), "job1", "https://cdn.example/video.mp4")
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if ref != "https://cdn.example/video.mp4" {
		t.Errorf("remote URL must pass through, got %q", ref)
	}
}

func TestPersistPrefersHost(t *testing.T) {
	host := &fakeHost{url: "https://img.example/abc.png"}
	store := NewStore(t.TempDir(), host, nil)

	ref, err := store.Persist(context.Background(), "job1", dataURL())
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if ref != "https://img.example/abc.png" {
		t.Errorf("hosted URL expected, got %q", ref)
	}
	if len(host.seen) != 1 || host.seen[0] != "job1.png" {
		t.Errorf("host should receive the job-keyed filename, got %v", host.seen)
	}
}

func TestPersistFallsBackWhenHostFails(t *testing.T) {
	cases := []struct {
		name string
		host *fakeHost
	}{
		{"host error", &fakeHost{err: errors.New("upload failed")}},
		{"host declined", &fakeHost{url: ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewStore(t.TempDir(), tc.host, nil)
			ref, err := store.Persist(context.Background(), "job1", dataURL())
			if err != nil {
				t.Fatalf("Persist: %v", err)
			}
			if !IsLocal(ref) {
				t.Fatalf("expected local fallback, got %q", ref)
			}

			// The stored bytes must be identical to the decoded payload.
			data, mimeType, err := store.Read(ref)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(data, pngPayload) {
				t.Error("stored bytes differ from the original payload")
			}
			if mimeType != "image/png" {
				t.Errorf("mime type: got %q, want image/png", mimeType)
			}
		})
	}
}

func TestPersistRejectsMalformedDataURL(t *testing.T) {
	store := NewStore(t.TempDir(), nil, nil)
	if _, err := store.Persist(context.Background(), "job1", "data:image/png;base64,@@@not-base64@@@"); err == nil {
		t.Error("malformed data URL should be rejected")
	}
}

func TestReadRejectsTraversal(t *testing.T) {
	store := NewStore(t.TempDir(), nil, nil)
	if _, _, err := store.Read("file:../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("traversal should resolve inside the media dir and miss, got: %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir(), nil, nil)
	ref, err := store.Persist(context.Background(), "job1", dataURL())
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !store.Delete(ref) {
		t.Error("Delete should remove the local file")
	}
	if _, _, err := store.Read(ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
	if store.Delete("https://cdn.example/video.mp4") {
		t.Error("Delete must leave remote references alone")
	}
}

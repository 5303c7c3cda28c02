package ratelimit

import (
	"net/http/httptest"
	"testing"
)

func TestAuthClassBurst(t *testing.T) {
	l := New()
	defer l.Stop()

	allowed := 0
	for i := 0; i < 20; i++ {
		if l.Allow("1.2.3.4", ClassAuth) {
			allowed++
		}
	}
	if allowed != limits[ClassAuth] {
		t.Errorf("auth class burst: got %d allowed, want %d", allowed, limits[ClassAuth])
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := New()
	defer l.Stop()

	for i := 0; i < limits[ClassAuth]; i++ {
		if !l.Allow("1.1.1.1", ClassAuth) {
			t.Fatalf("request %d for first identity should be allowed", i)
		}
	}
	if l.Allow("1.1.1.1", ClassAuth) {
		t.Error("first identity should be exhausted")
	}
	if !l.Allow("2.2.2.2", ClassAuth) {
		t.Error("second identity must have its own budget")
	}
}

func TestClassesAreIndependent(t *testing.T) {
	l := New()
	defer l.Stop()

	for l.Allow("1.2.3.4", ClassAuth) {
	}
	if !l.Allow("1.2.3.4", ClassAPI) {
		t.Error("exhausting the auth class must not affect the api class")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := ClientIP(r, false); got != "10.0.0.9" {
		t.Errorf("untrusted proxy: got %q, want remote addr host", got)
	}
	if got := ClientIP(r, true); got != "203.0.113.7" {
		t.Errorf("trusted proxy: got %q, want first forwarded hop", got)
	}

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.RemoteAddr = "10.0.0.9:1234"
	if got := ClientIP(r2, true); got != "10.0.0.9" {
		t.Errorf("trusted proxy without header: got %q, want remote addr host", got)
	}
}

// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// LoopbackAddr is the remote address given to test requests. The debug
// routes only answer loopback clients.
const LoopbackAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewLoopbackRequest creates a test HTTP request that appears to come from
// the local host.
func NewLoopbackRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = LoopbackAddr
	return req
}

// WriteFile writes content to name inside a per-test temporary directory and
// returns the full path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

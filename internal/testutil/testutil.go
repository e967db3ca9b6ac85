// Package testutil provides shared helpers for exercising the /debug/
// handlers in tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// LoopbackAddr is the client address given to test requests. The debug
// handlers refuse clients that are not on loopback or the tailnet.
const LoopbackAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewLoopbackRequest creates a test request that appears to come from
// localhost.
func NewLoopbackRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = LoopbackAddr
	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Get serves a loopback GET for path through h.
func Get(h http.Handler, path string) *httptest.ResponseRecorder {
	return Serve(h, NewLoopbackRequest(http.MethodGet, path, nil))
}

package serialmux

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/benchscope/internal/testutil"
)

func TestAttachAdminRoutes_TailRejectsOtherMethods(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	defer mux.Close()

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	w := testutil.Serve(httpMux, testutil.NewLoopbackRequest(http.MethodPost, "/debug/tail", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
	if !strings.Contains(w.Body.String(), "method not allowed") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestAttachAdminRoutes_RejectsRemoteClients(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	defer mux.Close()

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := httptest.NewRequest(http.MethodGet, "/debug/tail", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden && w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 403 or 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct == "text/event-stream" {
		t.Error("remote client was handed the live tail")
	}
}

func TestAttachAdminRoutes_TailStreamsTaggedLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/tail", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /debug/tail: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scan := bufio.NewScanner(resp.Body)
		for scan.Scan() {
			lines <- scan.Text()
		}
		close(lines)
	}()

	// The ping arrives once the handler has subscribed.
	waitFor(t, lines, ": ping")
	port.AddReadData([]byte("NO SIGNAL\r"))
	waitFor(t, lines, "event: no_signal")
	waitFor(t, lines, "data: NO SIGNAL")
}

func waitFor(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream ended before %q", want)
			}
			if line == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

package serialmux

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/benchscope/internal/httputil"
)

// AttachAdminRoutes attaches the serial live tail to the given HTTP mux at
// /debug/tail. tsweb only serves it to loopback and tailnet clients. The
// route is read only: the meter firmware never reads its UART.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Server-Sent Events for every line coming from the serial port, tagged
	// with the line's event type.
	debug.Handle("tail", "live tail of the serial port (SSE)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.SubscribeBuffered(16)
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ClassifyLine(line), line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
}

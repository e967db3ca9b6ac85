package pipeline

import (
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/benchscope/internal/httputil"
)

// Stats counts cycle outcomes.
type Stats struct {
	Cycles        uint64    `json:"cycles"`
	Presented     uint64    `json:"presented"`
	Timeouts      uint64    `json:"timeouts"`
	NoSample      uint64    `json:"no_sample"`
	Rejected      uint64    `json:"rejected"`
	SourceErrors  uint64    `json:"source_errors"`
	PresentErrors uint64    `json:"present_errors"`
	DroppedLines  uint64    `json:"dropped_lines"`
	LastPresented time.Time `json:"last_presented"`
	LastError     string    `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the counters. It may be called from any
// goroutine.
func (p *Pipeline[T]) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// AttachAdminRoutes publishes the counters on the /debug/ index and as JSON at
// /debug/pipeline.
func (p *Pipeline[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc(p.opts.Name+" cycles", func() any { return p.Stats().Cycles })
	debug.KVFunc(p.opts.Name+" presented", func() any { return p.Stats().Presented })
	debug.Handle("pipeline", "pipeline cycle counters (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, p.Stats())
	}))
}

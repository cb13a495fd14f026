package relaydebug

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"

	"go.uber.org/zap"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// HealthReporter exposes one pipeline's live health snapshot.
// Satisfied by *finality.SyncLoop.
type HealthReporter interface {
	Name() string
	Health() finality.Health
}

// StartDebugServer starts a debug server in a background goroutine,
// accepting connections on the given listener.
// Any HTTP logging will be written at info level to the given logger.
// The server will be forcefully shut down when ctx finishes.
func StartDebugServer(ctx context.Context, log *zap.Logger, ln net.Listener, reporters []HealthReporter) {
	// Although we could just import net/http/pprof and rely on the default global server,
	// we may want many instances of this in test,
	// and we will probably want more endpoints as time goes on,
	// so use a dedicated http.Server instance here.

	// Set up new mux identical to the default mux configuration in net/http/pprof.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// And redirect the browser to the /debug/pprof root,
	// so operators don't see a mysterious 404 page.
	mux.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))

	// Per-pipeline health. 503 when any pipeline hit a fatal fault so
	// ordinary HTTP probes can alert without parsing the body.
	mux.HandleFunc("/relayer/health", func(w http.ResponseWriter, r *http.Request) {
		type pipelineHealth struct {
			Path string `json:"path"`
			finality.Health
		}
		out := make([]pipelineHealth, 0, len(reporters))
		anyFatal := false
		for _, rep := range reporters {
			h := rep.Health()
			if h.Fatal {
				anyFatal = true
			}
			out = append(out, pipelineHealth{Path: rep.Name(), Health: h})
		}
		w.Header().Set("Content-Type", "application/json")
		if anyFatal {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Info("Failed to write health response", zap.Error(err))
		}
	})

	srv := &http.Server{
		Handler:  mux,
		ErrorLog: zap.NewStdLog(log),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go srv.Serve(ln)

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}

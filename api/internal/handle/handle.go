// Package handle serves the server-key proxy routes. Upstream credentials
// come from process configuration only and never leave this process.
package handle

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/routing"
)

// Upstream is one server-held chat-completions target.
type Upstream struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Options struct {
	OCR            Upstream
	Analysis       Upstream
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

type Handle struct {
	engine  ocr.Engine
	opts    Options
	log     *slog.Logger
	timeout time.Duration
	maxBody int64
}

// New wires the proxy handlers to engine, which must accept Direct routes.
func New(engine ocr.Engine, opts Options) *Handle {
	h := &Handle{
		engine:  engine,
		opts:    opts,
		log:     opts.Logger,
		timeout: opts.RequestTimeout,
		maxBody: opts.MaxBodyBytes,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.timeout <= 0 {
		h.timeout = 120 * time.Second
	}
	if h.maxBody <= 0 {
		h.maxBody = 20 << 20
	}
	return h
}

// Routes registers every proxy endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc(routing.StageOCR.ProxyPath(), h.OCR)
	mux.HandleFunc(routing.StageAnalysis.ProxyPath(), h.Analyze)
	mux.HandleFunc("/healthz", Healthz)
}

// Handler is the full proxy server handler with logging and recovery.
func (h *Handle) Handler() http.Handler {
	mux := http.NewServeMux()
	h.Routes(mux)
	return h.withRequestLog(h.withRecover(mux))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

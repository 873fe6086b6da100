package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxBody caps an inbound payload
const maxBody = 1 << 20

// HTTP accepts payloads on POST /sms
type HTTP struct {
	addr    string
	runner  Runner
	metrics http.Handler
	server  *http.Server
}

// NewHTTP creates the HTTP host. metrics may be nil.
func NewHTTP(addr string, runner Runner, metrics http.Handler) *HTTP {
	h := &HTTP{addr: addr, runner: runner, metrics: metrics}
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

func (h *HTTP) Name() string { return "http" }

// Router returns the chi router serving every route
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/sms", h.handleSMS)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	return r
}

// Start listens until ctx is cancelled
func (h *HTTP) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http host listening", "addr", h.addr)
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (h *HTTP) handleSMS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("sms request too large", "limit", tooLarge.Limit, "remote", r.RemoteAddr)
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	res := h.runner.Run(body, func() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	})
	slog.Debug("sms request handled", "run", res.RunID, "state", res.State, "remote", r.RemoteAddr)
}

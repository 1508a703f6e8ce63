// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"census/pkg/platform/httputil"
)

const defaultCheckTimeout = 2 * time.Second

// CheckFunc reports whether one dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Handler serves /healthz and /readyz.
type Handler struct {
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a health Handler. Nil checks are skipped, so optional
// dependencies can be passed unconditionally.
func New(logger *slog.Logger, checks map[string]CheckFunc) *Handler {
	h := &Handler{checks: make(map[string]CheckFunc, len(checks)), timeout: defaultCheckTimeout, logger: logger}
	for name, check := range checks {
		if check != nil {
			h.checks[name] = check
		}
	}
	return h
}

// Register registers the probe routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleLiveness)
	r.Get("/readyz", h.handleReadiness)
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleReadiness runs every check concurrently. Each failing check is
// reported by name; any failure makes the instance unready.
func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]string, len(h.checks))

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			err := check(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = err.Error()
				return err
			}
			results[name] = "ok"
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Checks: results})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok", Checks: results})
}

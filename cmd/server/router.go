package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"census/internal/citizens/handler"
	"census/internal/health"
	"census/internal/platform/config"
	"census/internal/platform/metrics"
)

type routerDeps struct {
	service  handler.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	checks   map[string]health.CheckFunc
	server   config.ServerConfig
}

// newRouter mounts the probes, the metrics endpoint and the import API.
// Trailing slashes are stripped before routing.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.StripSlashes)

	r.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))
	health.New(deps.logger, deps.checks).Register(r)

	handler.New(deps.service, deps.logger, deps.metrics,
		handler.WithMaxBodyBytes(deps.server.MaxBodyBytes),
		handler.WithRequestTimeout(deps.server.RequestTimeout),
	).Register(r)

	return r
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"census/internal/citizens/models"
	"census/internal/citizens/validation"
	"census/internal/platform/metrics"
	"census/internal/platform/middleware"
	id "census/pkg/domain"
	dErrors "census/pkg/domain-errors"
	"census/pkg/platform/httputil"
	"census/pkg/platform/middleware/metadata"
	"census/pkg/platform/middleware/requesttime"
	"census/pkg/requestcontext"
)

const (
	defaultMaxBodyBytes   = 64 << 20
	defaultRequestTimeout = 30 * time.Second
)

//go:generate mockgen -source=handler.go -destination=mocks/citizens-mocks.go -package=mocks Service

// Service defines the interface for import operations.
type Service interface {
	CreateImport(ctx context.Context, batch *models.ImportBatch) (id.ImportID, error)
	UpdateCitizen(ctx context.Context, importID id.ImportID, citizenID id.CitizenID, patch *models.CitizenPatch) (*models.Citizen, error)
	ListCitizens(ctx context.Context, importID id.ImportID) ([]models.Citizen, error)
	BirthdayStats(ctx context.Context, importID id.ImportID) (models.BirthdayStats, error)
	AgePercentiles(ctx context.Context, importID id.ImportID) ([]models.TownAgePercentiles, error)
}

// Handler serves the import endpoints.
type Handler struct {
	service        Service
	validator      *validation.Validator
	logger         *slog.Logger
	metrics        *metrics.Metrics
	maxBodyBytes   int64
	requestTimeout time.Duration
	clock          func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithRequestTimeout bounds every request context.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.requestTimeout = d
	}
}

// WithClock overrides the request clock used for birth-date checks and ages.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// New creates an import Handler.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		validator:      validation.New(),
		logger:         logger,
		metrics:        metrics,
		maxBodyBytes:   defaultMaxBodyBytes,
		requestTimeout: defaultRequestTimeout,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the import routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	importRouter := chi.NewRouter()
	importRouter.Use(middleware.Recovery(h.logger))
	importRouter.Use(middleware.RequestID)
	importRouter.Use(requesttime.MiddlewareWithClock(h.clock))
	importRouter.Use(metadata.ClientMetadata)
	importRouter.Use(middleware.Logger(h.logger))
	importRouter.Use(middleware.Timeout(h.requestTimeout))
	importRouter.Use(middleware.ContentTypeJSON)
	importRouter.Use(middleware.LatencyMiddleware(h.metrics))

	importRouter.Post("/", h.handleCreateImport)
	importRouter.Get("/{import_id}/citizens", h.handleListCitizens)
	importRouter.Get("/{import_id}/citizens/birthdays", h.handleBirthdays)
	importRouter.Patch("/{import_id}/citizens/{citizen_id}", h.handleUpdateCitizen)
	importRouter.Get("/{import_id}/towns/stat/percentile/age", h.handleAgePercentiles)

	r.Mount("/imports", importRouter)
}

func (h *Handler) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := httputil.ReadBody(w, r, h.maxBodyBytes)
	if err != nil {
		h.writeRejected(ctx, w, "invalid import request", err)
		return
	}
	batch, err := h.validator.ValidateImport(body, requestcontext.Today(ctx))
	if err != nil {
		h.writeRejected(ctx, w, "invalid import request", err)
		return
	}

	importID, err := h.service.CreateImport(ctx, batch)
	if err != nil {
		h.writeFailed(ctx, w, "failed to create import", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, envelope{Data: importCreatedResponse{ImportID: int64(importID)}})
}

func (h *Handler) handleListCitizens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	importID, ok := h.importID(w, r)
	if !ok {
		return
	}

	citizens, err := h.service.ListCitizens(ctx, importID)
	if err != nil {
		h.writeFailed(ctx, w, "failed to list citizens", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, envelope{Data: toCitizenResponses(citizens)})
}

func (h *Handler) handleUpdateCitizen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	importID, ok := h.importID(w, r)
	if !ok {
		return
	}
	citizenID, err := id.ParseCitizenID(chi.URLParam(r, "citizen_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "citizen not found"))
		return
	}

	body, err := httputil.ReadBody(w, r, h.maxBodyBytes)
	if err != nil {
		h.writeRejected(ctx, w, "invalid citizen update", err)
		return
	}
	patch, err := h.validator.ValidatePatch(body, citizenID, requestcontext.Today(ctx))
	if err != nil {
		h.writeRejected(ctx, w, "invalid citizen update", err)
		return
	}

	citizen, err := h.service.UpdateCitizen(ctx, importID, citizenID, patch)
	if err != nil {
		h.writeFailed(ctx, w, "failed to update citizen", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, envelope{Data: toCitizenResponse(*citizen)})
}

func (h *Handler) handleBirthdays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	importID, ok := h.importID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.BirthdayStats(ctx, importID)
	if err != nil {
		h.writeFailed(ctx, w, "failed to compute birthday stats", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, envelope{Data: toBirthdaysResponse(stats)})
}

func (h *Handler) handleAgePercentiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	importID, ok := h.importID(w, r)
	if !ok {
		return
	}

	towns, err := h.service.AgePercentiles(ctx, importID)
	if err != nil {
		h.writeFailed(ctx, w, "failed to compute age percentiles", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, envelope{Data: toPercentilesResponse(towns)})
}

// importID parses the import_id path segment. Anything but an unsigned
// decimal is an unknown route, so it is reported as not found.
func (h *Handler) importID(w http.ResponseWriter, r *http.Request) (id.ImportID, bool) {
	importID, err := id.ParseImportID(chi.URLParam(r, "import_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "import not found"))
		return 0, false
	}
	return importID, true
}

func (h *Handler) writeRejected(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func (h *Handler) writeFailed(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	if httputil.StatusFor(code) < http.StatusInternalServerError {
		h.writeRejected(ctx, w, msg, err)
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", code,
		"error", err,
	)
	httputil.WriteError(w, err)
}

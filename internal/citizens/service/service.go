// Package service orchestrates citizen imports, updates and stats.
//
// Writes run in one transaction through StoreTx and delegate graph upkeep to
// the graph package. Reads load citizens through Reader and aggregate them
// with the stats package, optionally through a StatsCache. Cache and event
// failures are logged and never fail the request. An import whose cache
// invalidation failed after a commit is read from the store until a retried
// invalidation succeeds.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"census/internal/citizens/graph"
	"census/internal/citizens/metrics"
	"census/internal/citizens/models"
	"census/internal/citizens/stats"
	id "census/pkg/domain"
	dErrors "census/pkg/domain-errors"
	"census/pkg/platform/sentinel"
	"census/pkg/platform/tracing"
	"census/pkg/requestcontext"
)

// Service is the entry point for the citizens module.
type Service struct {
	reader    Reader
	tx        StoreTx
	cache     StatsCache
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	pending   *pendingInvalidations
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStatsCache enables read-through caching of aggregates.
func WithStatsCache(cache StatsCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// New constructs a Service.
func New(reader Reader, tx StoreTx, opts ...Option) *Service {
	s := &Service{reader: reader, tx: tx, pending: newPendingInvalidations()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateImport stores a validated batch as a new import.
func (s *Service) CreateImport(ctx context.Context, batch *models.ImportBatch) (importID id.ImportID, err error) {
	ctx, span := tracing.Start(ctx, "citizens.create_import", attribute.Int("citizens.count", len(batch.Citizens)))
	defer tracing.End(span, &err)

	err = s.tx.RunInTx(ctx, func(store Store) error {
		var txErr error
		importID, txErr = graph.CreateDataset(ctx, store, batch)
		return txErr
	})
	if err != nil {
		return 0, translate(err, "failed to create import")
	}
	span.SetAttributes(attribute.Int64("import_id", int64(importID)))

	// Import ids restart with the memory store; retire anything cached under
	// this id by an earlier process.
	s.invalidate(ctx, importID)
	s.metrics.IncrementImportsCreated(len(batch.Citizens))
	s.logger.InfoContext(ctx, "import created",
		"import_id", importID,
		"citizens", len(batch.Citizens),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publish(ctx, models.Event{
		Type:         models.EventImportCreated,
		ImportID:     importID,
		CitizenCount: len(batch.Citizens),
	})
	return importID, nil
}

// UpdateCitizen applies a validated patch and returns the citizen as stored.
func (s *Service) UpdateCitizen(ctx context.Context, importID id.ImportID, citizenID id.CitizenID, patch *models.CitizenPatch) (updated *models.Citizen, err error) {
	ctx, span := tracing.Start(ctx, "citizens.update_citizen",
		attribute.Int64("import_id", int64(importID)),
		attribute.Int64("citizen_id", int64(citizenID)),
		attribute.Bool("relatives.replaced", patch.Relatives != nil),
	)
	defer tracing.End(span, &err)

	err = s.tx.RunInTx(ctx, func(store Store) error {
		var txErr error
		updated, txErr = graph.UpdateCitizen(ctx, store, importID, citizenID, patch)
		return txErr
	})
	if err != nil {
		return nil, translate(err, "failed to update citizen")
	}

	s.invalidate(ctx, importID)
	s.metrics.IncrementCitizenUpdates(patch.Relatives != nil)
	s.logger.InfoContext(ctx, "citizen updated",
		"import_id", importID,
		"citizen_id", citizenID,
		"relatives_replaced", patch.Relatives != nil,
		"request_id", requestcontext.RequestID(ctx),
	)
	event := models.Event{
		Type:      models.EventCitizenUpdated,
		ImportID:  importID,
		CitizenID: &citizenID,
	}
	if patch.Relatives != nil {
		event.Relatives = updated.Relatives
	}
	s.publish(ctx, event)
	return updated, nil
}

// ListCitizens returns every citizen of an import ordered by citizen id.
func (s *Service) ListCitizens(ctx context.Context, importID id.ImportID) (citizens []models.Citizen, err error) {
	ctx, span := tracing.Start(ctx, "citizens.list", attribute.Int64("import_id", int64(importID)))
	defer tracing.End(span, &err)

	return s.load(ctx, importID)
}

// BirthdayStats returns presents per month for an import.
func (s *Service) BirthdayStats(ctx context.Context, importID id.ImportID) (result models.BirthdayStats, err error) {
	ctx, span := tracing.Start(ctx, "citizens.birthday_stats", attribute.Int64("import_id", int64(importID)))
	defer tracing.End(span, &err)

	version, cacheable := s.cacheVersion(ctx, metrics.AggregateBirthdays, importID)
	if cacheable {
		cached, ok, cacheErr := s.cache.GetBirthdays(ctx, importID, version)
		if s.recordLookup(ctx, metrics.AggregateBirthdays, importID, ok, cacheErr) {
			return cached, nil
		}
	}

	citizens, err := s.load(ctx, importID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result = stats.BirthdayPresents(citizens)
	s.metrics.ObserveAggregation(metrics.AggregateBirthdays, time.Since(start))

	if cacheable {
		if cacheErr := s.cache.SetBirthdays(ctx, importID, version, result); cacheErr != nil {
			s.logger.WarnContext(ctx, "failed to cache birthday stats", "import_id", importID, "error", cacheErr)
		}
	}
	return result, nil
}

// AgePercentiles returns age percentiles per town, as of the request date.
func (s *Service) AgePercentiles(ctx context.Context, importID id.ImportID) (result []models.TownAgePercentiles, err error) {
	ctx, span := tracing.Start(ctx, "citizens.age_percentiles", attribute.Int64("import_id", int64(importID)))
	defer tracing.End(span, &err)

	today := requestcontext.Today(ctx)
	version, cacheable := s.cacheVersion(ctx, metrics.AggregatePercentiles, importID)
	if cacheable {
		cached, ok, cacheErr := s.cache.GetPercentiles(ctx, importID, version, today)
		if s.recordLookup(ctx, metrics.AggregatePercentiles, importID, ok, cacheErr) {
			return cached, nil
		}
	}

	citizens, err := s.load(ctx, importID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result = stats.AgePercentiles(citizens, today)
	s.metrics.ObserveAggregation(metrics.AggregatePercentiles, time.Since(start))

	if cacheable {
		if cacheErr := s.cache.SetPercentiles(ctx, importID, version, today, result); cacheErr != nil {
			s.logger.WarnContext(ctx, "failed to cache age percentiles", "import_id", importID, "error", cacheErr)
		}
	}
	return result, nil
}

func (s *Service) load(ctx context.Context, importID id.ImportID) ([]models.Citizen, error) {
	citizens, err := s.reader.ListCitizens(ctx, importID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "import not found")
		}
		return nil, translate(err, "failed to load citizens")
	}
	return citizens, nil
}

// cacheVersion returns the cache version aggregates of importID are read and
// written under. It must be taken before the citizens are loaded. It reports
// false when the cache is off, unreachable, or not trusted for this import.
func (s *Service) cacheVersion(ctx context.Context, aggregate string, importID id.ImportID) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	s.retryInvalidations(ctx)
	if s.pending.has(importID) {
		s.metrics.IncrementCacheResult(aggregate, metrics.CacheBypass)
		return 0, false
	}
	version, err := s.cache.Version(ctx, importID)
	if err != nil {
		s.recordLookup(ctx, aggregate, importID, false, err)
		return 0, false
	}
	return version, true
}

// recordLookup logs and counts a cache lookup and reports whether it was a hit.
func (s *Service) recordLookup(ctx context.Context, aggregate string, importID id.ImportID, ok bool, err error) bool {
	switch {
	case err != nil:
		s.metrics.IncrementCacheResult(aggregate, metrics.CacheError)
		s.logger.WarnContext(ctx, "stats cache lookup failed",
			"aggregate", aggregate,
			"import_id", importID,
			"error", err,
		)
		return false
	case ok:
		s.metrics.IncrementCacheResult(aggregate, metrics.CacheHit)
		return true
	default:
		s.metrics.IncrementCacheResult(aggregate, metrics.CacheMiss)
		return false
	}
}

func (s *Service) invalidate(ctx context.Context, importID id.ImportID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, importID); err != nil {
		s.pending.add(importID)
		s.logger.WarnContext(ctx, "failed to invalidate stats cache, bypassing it for import",
			"import_id", importID,
			"error", err,
		)
	}
}

// retryInvalidations re-attempts failed invalidations, stopping at the first
// failure since Redis is most likely still down.
func (s *Service) retryInvalidations(ctx context.Context) {
	for importID, gen := range s.pending.snapshot() {
		if err := s.cache.Invalidate(ctx, importID); err != nil {
			return
		}
		s.pending.resolve(importID, gen)
		s.logger.InfoContext(ctx, "stats cache invalidation recovered", "import_id", importID)
	}
}

func (s *Service) publish(ctx context.Context, event models.Event) {
	if s.publisher == nil {
		return
	}
	event.OccurredAt = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.IncrementPublishFailure(string(event.Type))
		s.logger.WarnContext(ctx, "failed to publish event",
			"type", event.Type,
			"import_id", event.ImportID,
			"error", err,
		)
	}
}

// translate maps store and transaction failures onto domain errors. Errors
// that already carry a domain code pass through unchanged.
func translate(err error, message string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "integrity violation")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}

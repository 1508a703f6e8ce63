// Package cache keeps computed import aggregates in Redis.
//
// Each import has a version counter and one hash per version. The "birthdays"
// field holds the presents table; percentiles depend on the current date and
// live in one field per day. Any change to an import bumps its version, so
// aggregates computed from earlier state are never read again and expire with
// their hash.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"census/internal/citizens/models"
	id "census/pkg/domain"
	"census/pkg/platform/circuit"
	"census/pkg/platform/sentinel"
)

const (
	keyPrefix        = "census:stats:"
	versionPrefix    = "census:stats:ver:"
	fieldBirthdays   = "birthdays"
	fieldPercentiles = "percentiles:"
	dayLayout        = "2006-01-02"

	defaultTTL = time.Hour
)

type presentsRecord struct {
	CitizenID int64 `json:"citizen_id"`
	Presents  int   `json:"presents"`
}

type percentilesRecord struct {
	Town string  `json:"town"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P99  float64 `json:"p99"`
}

// StatsCache is a Redis-backed aggregate cache guarded by a circuit breaker.
// While the breaker is open, reads fail fast with sentinel.ErrUnavailable;
// writes still reach Redis and close the breaker once it recovers.
type StatsCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a StatsCache.
type Option func(*StatsCache)

// WithTTL sets how long an import's aggregates are kept.
func WithTTL(ttl time.Duration) Option {
	return func(c *StatsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *StatsCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithMetrics reports breaker state and skipped reads.
func WithMetrics(m *Metrics) Option {
	return func(c *StatsCache) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *StatsCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a StatsCache on top of client.
func New(client redis.Cmdable, opts ...Option) *StatsCache {
	c := &StatsCache{
		client:  client,
		ttl:     defaultTTL,
		breaker: circuit.New("stats-cache"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the current aggregate version of an import. Imports never
// changed since the cache started report version 0.
func (c *StatsCache) Version(ctx context.Context, importID id.ImportID) (int64, error) {
	if c.breaker.IsOpen() {
		c.metrics.IncCircuitBreakerSkipped()
		return 0, fmt.Errorf("read stats version: %w", sentinel.ErrUnavailable)
	}
	version, err := c.client.Get(ctx, versionKey(importID)).Int64()
	if errors.Is(err, redis.Nil) {
		c.record(ctx, nil)
		return 0, nil
	}
	c.record(ctx, err)
	if err != nil {
		return 0, fmt.Errorf("read stats version: %w", err)
	}
	return version, nil
}

func (c *StatsCache) GetBirthdays(ctx context.Context, importID id.ImportID, version int64) (models.BirthdayStats, bool, error) {
	var records map[string][]presentsRecord
	ok, err := c.get(ctx, key(importID, version), fieldBirthdays, &records)
	if err != nil || !ok {
		return nil, false, err
	}
	result := make(models.BirthdayStats, len(records))
	for month, list := range records {
		presents := make([]models.Presents, 0, len(list))
		for _, p := range list {
			presents = append(presents, models.Presents{CitizenID: id.CitizenID(p.CitizenID), Presents: p.Presents})
		}
		result[month] = presents
	}
	return result, true, nil
}

func (c *StatsCache) SetBirthdays(ctx context.Context, importID id.ImportID, version int64, stats models.BirthdayStats) error {
	records := make(map[string][]presentsRecord, len(stats))
	for month, list := range stats {
		out := make([]presentsRecord, 0, len(list))
		for _, p := range list {
			out = append(out, presentsRecord{CitizenID: int64(p.CitizenID), Presents: p.Presents})
		}
		records[month] = out
	}
	return c.set(ctx, key(importID, version), fieldBirthdays, records)
}

func (c *StatsCache) GetPercentiles(ctx context.Context, importID id.ImportID, version int64, day time.Time) ([]models.TownAgePercentiles, bool, error) {
	var records []percentilesRecord
	ok, err := c.get(ctx, key(importID, version), percentilesField(day), &records)
	if err != nil || !ok {
		return nil, false, err
	}
	towns := make([]models.TownAgePercentiles, 0, len(records))
	for _, r := range records {
		towns = append(towns, models.TownAgePercentiles{Town: r.Town, P50: r.P50, P75: r.P75, P99: r.P99})
	}
	return towns, true, nil
}

func (c *StatsCache) SetPercentiles(ctx context.Context, importID id.ImportID, version int64, day time.Time, towns []models.TownAgePercentiles) error {
	records := make([]percentilesRecord, 0, len(towns))
	for _, t := range towns {
		records = append(records, percentilesRecord{Town: t.Town, P50: t.P50, P75: t.P75, P99: t.P99})
	}
	return c.set(ctx, key(importID, version), percentilesField(day), records)
}

// Invalidate bumps the aggregate version of an import, retiring everything
// cached or still being computed for earlier versions. It always reaches
// Redis, regardless of the breaker state. The version key carries no TTL:
// letting it lapse would resurrect hashes of version 0.
func (c *StatsCache) Invalidate(ctx context.Context, importID id.ImportID) error {
	err := c.client.Incr(ctx, versionKey(importID)).Err()
	c.record(ctx, err)
	if err != nil {
		return fmt.Errorf("invalidate stats: %w", err)
	}
	return nil
}

func (c *StatsCache) get(ctx context.Context, k, field string, dst any) (bool, error) {
	if c.breaker.IsOpen() {
		c.metrics.IncCircuitBreakerSkipped()
		return false, fmt.Errorf("read stats: %w", sentinel.ErrUnavailable)
	}
	raw, err := c.client.HGet(ctx, k, field).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(ctx, nil)
		return false, nil
	}
	c.record(ctx, err)
	if err != nil {
		return false, fmt.Errorf("read stats: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", field, err)
	}
	return true, nil
}

func (c *StatsCache) set(ctx context.Context, k, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, field, raw)
		pipe.Expire(ctx, k, c.ttl)
		return nil
	})
	c.record(ctx, err)
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

func (c *StatsCache) record(ctx context.Context, err error) {
	var change circuit.StateChange
	if err != nil {
		_, change = c.breaker.RecordFailure()
	} else {
		_, change = c.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		c.metrics.SetCircuitBreakerState(true)
		c.logger.WarnContext(ctx, "stats cache circuit opened", "breaker", c.breaker.Name(), "error", err)
	case change.Closed:
		c.metrics.SetCircuitBreakerState(false)
		c.logger.InfoContext(ctx, "stats cache circuit closed", "breaker", c.breaker.Name())
	}
}

func key(importID id.ImportID, version int64) string {
	return keyPrefix + importID.String() + ":" + strconv.FormatInt(version, 10)
}

func versionKey(importID id.ImportID) string {
	return versionPrefix + importID.String()
}

func percentilesField(day time.Time) string {
	return fieldPercentiles + day.UTC().Format(dayLayout)
}

package service

import (
	"context"
	"time"

	"census/internal/citizens/graph"
	"census/internal/citizens/models"
	id "census/pkg/domain"
)

// Reader loads an import's citizens with their relatives.
// Returns sentinel.ErrNotFound when the import does not exist.
type Reader interface {
	ListCitizens(ctx context.Context, importID id.ImportID) ([]models.Citizen, error)
}

// Store is the transaction-scoped store handed to RunInTx callbacks.
type Store interface {
	graph.Store
	Reader
}

// StoreTx provides the transactional boundary for imports and updates.
// Implementations wrap a database transaction or, in memory, a copy-on-write
// snapshot.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// StatsCache stores computed aggregates per import and version. A miss
// returns ok=false. Readers take the version before loading citizens and
// write back under that version; Invalidate moves an import to a new version,
// so results computed from earlier state are never served.
// Percentiles depend on the current date and are cached per day.
type StatsCache interface {
	Version(ctx context.Context, importID id.ImportID) (int64, error)
	GetBirthdays(ctx context.Context, importID id.ImportID, version int64) (models.BirthdayStats, bool, error)
	SetBirthdays(ctx context.Context, importID id.ImportID, version int64, stats models.BirthdayStats) error
	GetPercentiles(ctx context.Context, importID id.ImportID, version int64, day time.Time) ([]models.TownAgePercentiles, bool, error)
	SetPercentiles(ctx context.Context, importID id.ImportID, version int64, day time.Time, towns []models.TownAgePercentiles) error
	Invalidate(ctx context.Context, importID id.ImportID) error
}

// EventPublisher delivers domain events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

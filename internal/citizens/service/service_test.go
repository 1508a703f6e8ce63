package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"census/internal/citizens/graph"
	"census/internal/citizens/models"
	"census/internal/citizens/service"
	"census/internal/citizens/store"
	id "census/pkg/domain"
	dErrors "census/pkg/domain-errors"
	"census/pkg/platform/sentinel"
	"census/pkg/requestcontext"
)

type memoryTx struct {
	mem *store.Memory
}

func (t memoryTx) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	return t.mem.Update(ctx, func(tx *store.MemoryTx) error {
		return fn(tx)
	})
}

type cacheKey struct {
	importID id.ImportID
	version  int64
	day      time.Time
}

type fakeCache struct {
	mu            sync.Mutex
	versions      map[id.ImportID]int64
	birthdays     map[cacheKey]models.BirthdayStats
	percentiles   map[cacheKey][]models.TownAgePercentiles
	invalidated   []id.ImportID
	err           error
	invalidateErr error
	// beforeSet runs ahead of every write, outside the lock.
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		versions:    make(map[id.ImportID]int64),
		birthdays:   make(map[cacheKey]models.BirthdayStats),
		percentiles: make(map[cacheKey][]models.TownAgePercentiles),
	}
}

func (c *fakeCache) Version(_ context.Context, importID id.ImportID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.versions[importID], nil
}

func (c *fakeCache) GetBirthdays(_ context.Context, importID id.ImportID, version int64) (models.BirthdayStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.birthdays[cacheKey{importID: importID, version: version}]
	return v, ok, nil
}

func (c *fakeCache) SetBirthdays(_ context.Context, importID id.ImportID, version int64, v models.BirthdayStats) error {
	c.runBeforeSet()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.birthdays[cacheKey{importID: importID, version: version}] = v
	return c.err
}

func (c *fakeCache) GetPercentiles(_ context.Context, importID id.ImportID, version int64, day time.Time) ([]models.TownAgePercentiles, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.percentiles[cacheKey{importID: importID, version: version, day: day}]
	return v, ok, nil
}

func (c *fakeCache) SetPercentiles(_ context.Context, importID id.ImportID, version int64, day time.Time, v []models.TownAgePercentiles) error {
	c.runBeforeSet()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.percentiles[cacheKey{importID: importID, version: version, day: day}] = v
	return c.err
}

func (c *fakeCache) Invalidate(_ context.Context, importID id.ImportID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.versions[importID]++
	c.invalidated = append(c.invalidated, importID)
	return nil
}

func (c *fakeCache) runBeforeSet() {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// hasCurrentBirthdays reports whether birthdays are cached for the import's
// current version.
func (c *fakeCache) hasCurrentBirthdays(importID id.ImportID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.birthdays[cacheKey{importID: importID, version: c.versions[importID]}]
	return ok
}

func (c *fakeCache) setInvalidateErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateErr = err
}

type fakePublisher struct {
	events []models.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event models.Event) error {
	p.events = append(p.events, event)
	return p.err
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	mem       *store.Memory
	cache     *fakeCache
	publisher *fakePublisher
	service   *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

var requestTime = time.Date(2019, time.August, 22, 10, 30, 0, 0, time.UTC)

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), requestTime), "req-1")
	s.mem = store.NewMemory()
	s.cache = newFakeCache()
	s.publisher = &fakePublisher{}
	s.service = service.New(s.mem, memoryTx{mem: s.mem},
		service.WithStatsCache(s.cache),
		service.WithEventPublisher(s.publisher),
	)
}

func citizen(cid id.CitizenID, town string, birth time.Time, relatives ...id.CitizenID) models.Citizen {
	return models.Citizen{
		CitizenID: cid,
		Town:      town,
		Street:    "Ленина",
		Building:  "1",
		Apartment: 10,
		Name:      "Житель",
		BirthDate: birth,
		Gender:    models.GenderFemale,
		Relatives: relatives,
	}
}

func (s *ServiceSuite) seed() id.ImportID {
	importID, err := s.service.CreateImport(s.ctx, &models.ImportBatch{Citizens: []models.Citizen{
		citizen(101, "Москва", time.Date(1990, time.January, 5, 0, 0, 0, 0, time.UTC), 102),
		citizen(102, "Москва", time.Date(1991, time.October, 9, 0, 0, 0, 0, time.UTC), 101),
		citizen(103, "Тверь", time.Date(1960, time.March, 1, 0, 0, 0, 0, time.UTC)),
	}})
	s.Require().NoError(err)
	return importID
}

func (s *ServiceSuite) relatives(importID id.ImportID) map[id.CitizenID][]id.CitizenID {
	citizens, err := s.service.ListCitizens(s.ctx, importID)
	s.Require().NoError(err)
	out := make(map[id.CitizenID][]id.CitizenID, len(citizens))
	for _, c := range citizens {
		out[c.CitizenID] = c.Relatives
	}
	return out
}

func (s *ServiceSuite) assertSymmetric(importID id.ImportID) {
	edges, err := s.mem.ListEdges(s.ctx, importID)
	s.Require().NoError(err)
	s.Empty(graph.CheckSymmetry(edges))
}

func (s *ServiceSuite) TestCreateImport() {
	importID := s.seed()

	s.Equal(map[id.CitizenID][]id.CitizenID{101: {102}, 102: {101}, 103: {}}, s.relatives(importID))
	edges, err := s.mem.ListEdges(s.ctx, importID)
	s.Require().NoError(err)
	s.Len(edges, 2)
	s.assertSymmetric(importID)

	s.Require().Len(s.publisher.events, 1)
	event := s.publisher.events[0]
	s.Equal(models.EventImportCreated, event.Type)
	s.Equal(importID, event.ImportID)
	s.Equal(3, event.CitizenCount)
	s.Equal(requestTime, event.OccurredAt)
	s.Equal("req-1", event.RequestID)
}

func (s *ServiceSuite) TestUpdateCitizen() {
	importID := s.seed()

	s.Run("relatives replace the whole set", func() {
		relatives := []id.CitizenID{102, 103}
		updated, err := s.service.UpdateCitizen(s.ctx, importID, 101, &models.CitizenPatch{Relatives: &relatives})
		s.Require().NoError(err)
		s.Equal([]id.CitizenID{102, 103}, updated.Relatives)
		s.Equal(map[id.CitizenID][]id.CitizenID{101: {102, 103}, 102: {101}, 103: {101}}, s.relatives(importID))
		s.assertSymmetric(importID)
	})

	s.Run("apartment only leaves everything else", func() {
		before, err := s.service.ListCitizens(s.ctx, importID)
		s.Require().NoError(err)

		apartment := int64(99)
		updated, err := s.service.UpdateCitizen(s.ctx, importID, 102, &models.CitizenPatch{Apartment: &apartment})
		s.Require().NoError(err)

		want := before[1]
		want.Apartment = 99
		s.Equal(want.Relatives, updated.Relatives)
		s.Equal(want.Town, updated.Town)
		s.Equal(want.Name, updated.Name)
		s.Equal(want.BirthDate, updated.BirthDate)
		s.Equal(want.Gender, updated.Gender)
		s.Equal(int64(99), updated.Apartment)
	})

	s.Run("unknown relative leaves the graph untouched", func() {
		before := s.relatives(importID)
		relatives := []id.CitizenID{777}
		_, err := s.service.UpdateCitizen(s.ctx, importID, 101, &models.CitizenPatch{Relatives: &relatives})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(before, s.relatives(importID))
	})

	s.Run("missing import and citizen", func() {
		name := "Новое имя"
		_, err := s.service.UpdateCitizen(s.ctx, importID+1, 101, &models.CitizenPatch{Name: &name})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.service.UpdateCitizen(s.ctx, importID, 555, &models.CitizenPatch{Name: &name})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("successful updates invalidate and publish", func() {
		// One for the import itself, one per successful update.
		s.Equal([]id.ImportID{importID, importID, importID}, s.cache.invalidated)
		last := s.publisher.events[len(s.publisher.events)-1]
		s.Equal(models.EventCitizenUpdated, last.Type)
		s.Require().NotNil(last.CitizenID)
		s.Equal(id.CitizenID(102), *last.CitizenID)
		s.Nil(last.Relatives)
	})
}

func (s *ServiceSuite) TestBirthdayStats() {
	importID := s.seed()

	result, err := s.service.BirthdayStats(s.ctx, importID)
	s.Require().NoError(err)
	s.Equal([]models.Presents{{CitizenID: 102, Presents: 1}}, result["1"])
	s.Equal([]models.Presents{{CitizenID: 101, Presents: 1}}, result["10"])
	s.Empty(result["3"])

	s.Run("served from cache until an update", func() {
		s.True(s.cache.hasCurrentBirthdays(importID))

		relatives := []id.CitizenID{}
		_, err := s.service.UpdateCitizen(s.ctx, importID, 101, &models.CitizenPatch{Relatives: &relatives})
		s.Require().NoError(err)
		s.False(s.cache.hasCurrentBirthdays(importID))

		result, err := s.service.BirthdayStats(s.ctx, importID)
		s.Require().NoError(err)
		s.Empty(result["1"])
		s.Empty(result["10"])
	})

	s.Run("unknown import", func() {
		_, err := s.service.BirthdayStats(s.ctx, importID+10)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAgePercentiles() {
	importID := s.seed()

	result, err := s.service.AgePercentiles(s.ctx, importID)
	s.Require().NoError(err)
	// Москва: ages 27 (born 09.10.1991) and 29 (born 05.01.1990).
	s.Equal([]models.TownAgePercentiles{
		{Town: "Москва", P50: 28, P75: 28.5, P99: 28.98},
		{Town: "Тверь", P50: 59, P75: 59, P99: 59},
	}, result)

	s.Run("cache entries are per day", func() {
		later := requestcontext.WithTime(s.ctx, requestTime.AddDate(1, 0, 0))
		result, err := s.service.AgePercentiles(later, importID)
		s.Require().NoError(err)
		s.Equal(60.0, result[1].P50)
	})
}

func (s *ServiceSuite) TestCacheFailuresFallBackToStore() {
	importID := s.seed()
	s.cache.err = errors.New("redis down")

	result, err := s.service.BirthdayStats(s.ctx, importID)
	s.Require().NoError(err)
	s.Len(result, 12)

	_, err = s.service.AgePercentiles(s.ctx, importID)
	s.NoError(err)
}

func (s *ServiceSuite) TestFailedInvalidationBypassesCache() {
	importID := s.seed()

	result, err := s.service.BirthdayStats(s.ctx, importID)
	s.Require().NoError(err)
	s.Equal([]models.Presents{{CitizenID: 102, Presents: 1}}, result["1"])
	s.Require().True(s.cache.hasCurrentBirthdays(importID))

	s.cache.setInvalidateErr(errors.New("redis down"))
	relatives := []id.CitizenID{}
	_, err = s.service.UpdateCitizen(s.ctx, importID, 101, &models.CitizenPatch{Relatives: &relatives})
	s.Require().NoError(err)

	s.Run("reads skip the stale entry", func() {
		result, err := s.service.BirthdayStats(s.ctx, importID)
		s.Require().NoError(err)
		s.Empty(result["1"])
		s.Empty(result["10"])

		percentiles, err := s.service.AgePercentiles(s.ctx, importID)
		s.Require().NoError(err)
		s.Len(percentiles, 2)
	})

	s.Run("a later successful invalidation restores caching", func() {
		s.cache.setInvalidateErr(nil)

		result, err := s.service.BirthdayStats(s.ctx, importID)
		s.Require().NoError(err)
		s.Empty(result["1"])
		s.True(s.cache.hasCurrentBirthdays(importID))

		result, err = s.service.BirthdayStats(s.ctx, importID)
		s.Require().NoError(err)
		s.Empty(result["1"])
	})
}

func (s *ServiceSuite) TestResultComputedBeforeUpdateIsNotServedAfterIt() {
	importID := s.seed()

	// The update commits while a birthday read is between loading citizens
	// and writing its result back.
	s.cache.beforeSet = func() {
		relatives := []id.CitizenID{}
		_, err := s.service.UpdateCitizen(s.ctx, importID, 101, &models.CitizenPatch{Relatives: &relatives})
		s.Require().NoError(err)
	}

	result, err := s.service.BirthdayStats(s.ctx, importID)
	s.Require().NoError(err)
	s.Equal([]models.Presents{{CitizenID: 102, Presents: 1}}, result["1"])

	result, err = s.service.BirthdayStats(s.ctx, importID)
	s.Require().NoError(err)
	s.Empty(result["1"])
	s.Empty(result["10"])

	s.Run("percentiles written late are retired the same way", func() {
		town := "Тверь"
		s.cache.beforeSet = func() {
			_, err := s.service.UpdateCitizen(s.ctx, importID, 101, &models.CitizenPatch{Town: &town})
			s.Require().NoError(err)
		}

		before, err := s.service.AgePercentiles(s.ctx, importID)
		s.Require().NoError(err)
		s.Equal("Москва", before[0].Town)
		s.Equal(28.0, before[0].P50)

		after, err := s.service.AgePercentiles(s.ctx, importID)
		s.Require().NoError(err)
		s.Equal([]models.TownAgePercentiles{
			{Town: "Москва", P50: 27, P75: 27, P99: 27},
			{Town: "Тверь", P50: 44, P75: 51.5, P99: 58.7},
		}, after)
	})
}

func (s *ServiceSuite) TestPublishFailureDoesNotFailImport() {
	s.publisher.err = errors.New("broker unavailable")
	importID := s.seed()

	citizens, err := s.service.ListCitizens(s.ctx, importID)
	s.Require().NoError(err)
	s.Len(citizens, 3)
}

func (s *ServiceSuite) TestListCitizensUnknownImport() {
	_, err := s.service.ListCitizens(s.ctx, 42)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type failingTx struct {
	err error
}

func (t failingTx) RunInTx(context.Context, func(store service.Store) error) error {
	return t.err
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want dErrors.Code
	}{
		{"uniqueness violation", sentinel.ErrConflict, dErrors.CodeIntegrity},
		{"deadline", context.DeadlineExceeded, dErrors.CodeTimeout},
		{"driver failure", errors.New("connection reset"), dErrors.CodeInternal},
		{"domain error passes through", dErrors.New(dErrors.CodeNotFound, "import not found"), dErrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := service.New(store.NewMemory(), failingTx{err: tt.err})
			_, err := svc.CreateImport(context.Background(), &models.ImportBatch{})
			assert.Equal(t, tt.want, dErrors.CodeOf(err))
		})
	}
}

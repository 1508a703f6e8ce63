package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"census/internal/citizens/graph"
	"census/internal/citizens/models"
	id "census/pkg/domain"
	"census/pkg/platform/sentinel"
	"census/pkg/requestcontext"
)

type reader interface {
	ListCitizens(ctx context.Context, importID id.ImportID) ([]models.Citizen, error)
	ListEdges(ctx context.Context, importID id.ImportID) ([]models.Edge, error)
}

// txStore is the transaction-scoped surface both stores expose.
type txStore interface {
	graph.Store
	reader
}

// storeContract holds behaviour shared by the in-memory and PostgreSQL
// stores. Concrete suites set update and read.
type storeContract struct {
	suite.Suite
	update func(ctx context.Context, fn func(tx txStore) error) error
	read   reader
}

var contractNow = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

func contractCitizen(cid id.CitizenID, relatives ...id.CitizenID) models.Citizen {
	return models.Citizen{
		CitizenID: cid,
		Town:      "Москва",
		Street:    "Льва Толстого",
		Building:  "16к7стр5",
		Apartment: 7,
		Name:      "Иванов Иван Иванович",
		BirthDate: time.Date(1986, time.December, 26, 0, 0, 0, 0, time.UTC),
		Gender:    models.GenderMale,
		Relatives: relatives,
	}
}

func (s *storeContract) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), contractNow)
}

func (s *storeContract) createImport(citizens ...models.Citizen) id.ImportID {
	var importID id.ImportID
	err := s.update(s.ctx(), func(tx txStore) error {
		var err error
		importID, err = graph.CreateDataset(s.ctx(), tx, &models.ImportBatch{Citizens: citizens})
		return err
	})
	s.Require().NoError(err)
	return importID
}

func (s *storeContract) relatives(importID id.ImportID) map[id.CitizenID][]id.CitizenID {
	citizens, err := s.read.ListCitizens(s.ctx(), importID)
	s.Require().NoError(err)
	out := make(map[id.CitizenID][]id.CitizenID, len(citizens))
	for _, c := range citizens {
		out[c.CitizenID] = c.Relatives
	}
	return out
}

func (s *storeContract) TestCreateAndList() {
	importID := s.createImport(contractCitizen(102, 101), contractCitizen(101, 102), contractCitizen(103))

	citizens, err := s.read.ListCitizens(s.ctx(), importID)
	s.Require().NoError(err)
	s.Require().Len(citizens, 3)

	first := citizens[0]
	s.Equal(id.CitizenID(101), first.CitizenID)
	s.Equal(importID, first.ImportID)
	s.Equal("16к7стр5", first.Building)
	s.Equal(time.Date(1986, time.December, 26, 0, 0, 0, 0, time.UTC), first.BirthDate.UTC())
	s.Equal(models.GenderMale, first.Gender)
	s.False(first.CreatedAt.IsZero())

	s.Equal(map[id.CitizenID][]id.CitizenID{
		101: {102},
		102: {101},
		103: {},
	}, s.relatives(importID))

	edges, err := s.read.ListEdges(s.ctx(), importID)
	s.Require().NoError(err)
	s.Len(edges, 2)
	s.Empty(graph.CheckSymmetry(edges))
}

func (s *storeContract) TestImportsAreIsolated() {
	a := s.createImport(contractCitizen(1, 2), contractCitizen(2, 1))
	b := s.createImport(contractCitizen(1), contractCitizen(2))

	s.NotEqual(a, b)
	s.Equal([]id.CitizenID{2}, s.relatives(a)[1])
	s.Empty(s.relatives(b)[1])
}

func (s *storeContract) TestUnknownImport() {
	_, err := s.read.ListCitizens(s.ctx(), 424242)
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.update(s.ctx(), func(tx txStore) error {
		return tx.LockImport(s.ctx(), 424242)
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestDuplicateCitizenIsConflict() {
	err := s.update(s.ctx(), func(tx txStore) error {
		dataset, err := tx.CreateImport(s.ctx())
		if err != nil {
			return err
		}
		_, err = tx.InsertCitizens(s.ctx(), dataset.ID, []models.Citizen{contractCitizen(5), contractCitizen(5)})
		return err
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *storeContract) TestDuplicateAndSelfEdgesAreConflicts() {
	insert := func(edges func(ids map[id.CitizenID]int64) []models.Edge) error {
		return s.update(s.ctx(), func(tx txStore) error {
			dataset, err := tx.CreateImport(s.ctx())
			if err != nil {
				return err
			}
			ids, err := tx.InsertCitizens(s.ctx(), dataset.ID, []models.Citizen{contractCitizen(1), contractCitizen(2)})
			if err != nil {
				return err
			}
			return tx.InsertEdges(s.ctx(), edges(ids))
		})
	}

	err := insert(func(ids map[id.CitizenID]int64) []models.Edge {
		return []models.Edge{{From: ids[1], To: ids[2]}, {From: ids[1], To: ids[2]}}
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	err = insert(func(ids map[id.CitizenID]int64) []models.Edge {
		return []models.Edge{{From: ids[1], To: ids[1]}}
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *storeContract) TestFailedTransactionLeavesNothing() {
	boom := errors.New("boom")
	var created id.ImportID
	err := s.update(s.ctx(), func(tx txStore) error {
		var err error
		created, err = graph.CreateDataset(s.ctx(), tx, &models.ImportBatch{Citizens: []models.Citizen{contractCitizen(1)}})
		if err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.read.ListCitizens(s.ctx(), created)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestUpdateCitizenKeepsGraphSymmetric() {
	importID := s.createImport(contractCitizen(101, 102), contractCitizen(102, 101), contractCitizen(103))

	apartment := int64(12)
	relatives := []id.CitizenID{102, 103}
	var updated *models.Citizen
	err := s.update(s.ctx(), func(tx txStore) error {
		var err error
		updated, err = graph.UpdateCitizen(s.ctx(), tx, importID, 101, &models.CitizenPatch{
			Apartment: &apartment,
			Relatives: &relatives,
		})
		return err
	})
	s.Require().NoError(err)
	s.Equal(int64(12), updated.Apartment)
	s.Equal([]id.CitizenID{102, 103}, updated.Relatives)

	s.Equal(map[id.CitizenID][]id.CitizenID{
		101: {102, 103},
		102: {101},
		103: {101},
	}, s.relatives(importID))

	edges, err := s.read.ListEdges(s.ctx(), importID)
	s.Require().NoError(err)
	s.Len(edges, 4)
	s.Empty(graph.CheckSymmetry(edges))

	empty := []id.CitizenID{}
	err = s.update(s.ctx(), func(tx txStore) error {
		_, err := graph.UpdateCitizen(s.ctx(), tx, importID, 101, &models.CitizenPatch{Relatives: &empty})
		return err
	})
	s.Require().NoError(err)

	edges, err = s.read.ListEdges(s.ctx(), importID)
	s.Require().NoError(err)
	s.Empty(edges)
}

func (s *storeContract) TestResolveCitizensSkipsUnknown() {
	importID := s.createImport(contractCitizen(1), contractCitizen(2))

	err := s.update(s.ctx(), func(tx txStore) error {
		resolved, err := tx.ResolveCitizens(s.ctx(), importID, []id.CitizenID{1, 2, 3})
		s.Require().NoError(err)
		s.Len(resolved, 2)
		s.Contains(resolved, id.CitizenID(1))
		s.NotContains(resolved, id.CitizenID(3))
		return nil
	})
	s.Require().NoError(err)
}

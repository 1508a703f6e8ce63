package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"census/internal/citizens/models"
	id "census/pkg/domain"
	"census/pkg/platform/sentinel"
	"census/pkg/requestcontext"
)

type citizenKey struct {
	importID  id.ImportID
	citizenID id.CitizenID
}

// memoryState is one consistent snapshot of every import.
type memoryState struct {
	nextImportID  int64
	nextStorageID int64
	imports       map[id.ImportID]models.Dataset
	citizens      map[int64]models.Citizen
	byKey         map[citizenKey]int64
	members       map[id.ImportID][]int64
	edges         map[models.Edge]time.Time
}

func newMemoryState() *memoryState {
	return &memoryState{
		imports:  make(map[id.ImportID]models.Dataset),
		citizens: make(map[int64]models.Citizen),
		byKey:    make(map[citizenKey]int64),
		members:  make(map[id.ImportID][]int64),
		edges:    make(map[models.Edge]time.Time),
	}
}

func (s *memoryState) clone() *memoryState {
	members := make(map[id.ImportID][]int64, len(s.members))
	for importID, ids := range s.members {
		members[importID] = slices.Clone(ids)
	}
	return &memoryState{
		nextImportID:  s.nextImportID,
		nextStorageID: s.nextStorageID,
		imports:       maps.Clone(s.imports),
		citizens:      maps.Clone(s.citizens),
		byKey:         maps.Clone(s.byKey),
		members:       members,
		edges:         maps.Clone(s.edges),
	}
}

// Memory keeps imports in process memory. Writers run one at a time against
// a private copy that replaces the shared state only when they succeed, so a
// failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

// Update runs fn in a transaction.
func (m *Memory) Update(ctx context.Context, fn func(tx *MemoryTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&MemoryTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) ListCitizens(ctx context.Context, importID id.ImportID) ([]models.Citizen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&MemoryTx{state: m.state}).ListCitizens(ctx, importID)
}

func (m *Memory) ListEdges(ctx context.Context, importID id.ImportID) ([]models.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&MemoryTx{state: m.state}).ListEdges(ctx, importID)
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

// MemoryTx is the transaction-scoped view handed to Memory.Update callbacks.
type MemoryTx struct {
	state *memoryState
}

func (t *MemoryTx) CreateImport(ctx context.Context) (*models.Dataset, error) {
	now := requestcontext.Now(ctx)
	t.state.nextImportID++
	dataset := models.Dataset{
		ID:        id.ImportID(t.state.nextImportID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.state.imports[dataset.ID] = dataset
	return &dataset, nil
}

func (t *MemoryTx) InsertCitizens(ctx context.Context, importID id.ImportID, citizens []models.Citizen) (map[id.CitizenID]int64, error) {
	if _, ok := t.state.imports[importID]; !ok {
		return nil, fmt.Errorf("import %d: %w", importID, sentinel.ErrConflict)
	}
	now := requestcontext.Now(ctx)
	storageIDs := make(map[id.CitizenID]int64, len(citizens))
	for _, c := range citizens {
		key := citizenKey{importID: importID, citizenID: c.CitizenID}
		if _, exists := t.state.byKey[key]; exists {
			return nil, fmt.Errorf("citizen %d in import %d: %w", c.CitizenID, importID, sentinel.ErrConflict)
		}
		t.state.nextStorageID++
		c.ID = t.state.nextStorageID
		c.ImportID = importID
		c.Relatives = nil
		c.CreatedAt = now
		c.UpdatedAt = now
		t.state.citizens[c.ID] = c
		t.state.byKey[key] = c.ID
		t.state.members[importID] = append(t.state.members[importID], c.ID)
		storageIDs[c.CitizenID] = c.ID
	}
	return storageIDs, nil
}

func (t *MemoryTx) InsertEdges(ctx context.Context, edges []models.Edge) error {
	now := requestcontext.Now(ctx)
	for _, e := range edges {
		if e.From == e.To {
			return fmt.Errorf("self edge on citizen %d: %w", e.From, sentinel.ErrConflict)
		}
		if _, ok := t.state.citizens[e.From]; !ok {
			return fmt.Errorf("edge source %d: %w", e.From, sentinel.ErrConflict)
		}
		if _, ok := t.state.citizens[e.To]; !ok {
			return fmt.Errorf("edge target %d: %w", e.To, sentinel.ErrConflict)
		}
		if _, dup := t.state.edges[e]; dup {
			return fmt.Errorf("edge %d->%d: %w", e.From, e.To, sentinel.ErrConflict)
		}
		t.state.edges[e] = now
	}
	return nil
}

// LockImport only checks existence; Update already runs writers one at a time.
func (t *MemoryTx) LockImport(_ context.Context, importID id.ImportID) error {
	if _, ok := t.state.imports[importID]; !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *MemoryTx) FindCitizen(_ context.Context, importID id.ImportID, citizenID id.CitizenID) (*models.Citizen, error) {
	storageID, ok := t.state.byKey[citizenKey{importID: importID, citizenID: citizenID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := t.state.citizens[storageID]
	c.Relatives = t.relativesOf(storageID)
	return &c, nil
}

func (t *MemoryTx) ResolveCitizens(_ context.Context, importID id.ImportID, citizenIDs []id.CitizenID) (map[id.CitizenID]int64, error) {
	resolved := make(map[id.CitizenID]int64, len(citizenIDs))
	for _, cid := range citizenIDs {
		if storageID, ok := t.state.byKey[citizenKey{importID: importID, citizenID: cid}]; ok {
			resolved[cid] = storageID
		}
	}
	return resolved, nil
}

func (t *MemoryTx) UpdateCitizenFields(ctx context.Context, storageID int64, patch *models.CitizenPatch) error {
	c, ok := t.state.citizens[storageID]
	if !ok {
		return sentinel.ErrNotFound
	}
	patch.ApplyFields(&c)
	c.UpdatedAt = requestcontext.Now(ctx)
	t.state.citizens[storageID] = c
	return nil
}

func (t *MemoryTx) DeleteEdges(_ context.Context, storageID int64) error {
	for e := range t.state.edges {
		if e.From == storageID || e.To == storageID {
			delete(t.state.edges, e)
		}
	}
	return nil
}

// ListCitizens returns the import's citizens ordered by citizen id, each with
// its relatives.
func (t *MemoryTx) ListCitizens(_ context.Context, importID id.ImportID) ([]models.Citizen, error) {
	if _, ok := t.state.imports[importID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	members := t.state.members[importID]
	relatives := make(map[int64][]id.CitizenID, len(members))
	for e := range t.state.edges {
		to, ok := t.state.citizens[e.To]
		if ok && to.ImportID == importID {
			relatives[e.From] = append(relatives[e.From], to.CitizenID)
		}
	}

	citizens := make([]models.Citizen, 0, len(members))
	for _, storageID := range members {
		c := t.state.citizens[storageID]
		c.Relatives = relatives[storageID]
		slices.Sort(c.Relatives)
		if c.Relatives == nil {
			c.Relatives = []id.CitizenID{}
		}
		citizens = append(citizens, c)
	}
	slices.SortFunc(citizens, func(a, b models.Citizen) int {
		return cmp.Compare(a.CitizenID, b.CitizenID)
	})
	return citizens, nil
}

// ListEdges returns the import's edges ordered by source then target.
func (t *MemoryTx) ListEdges(_ context.Context, importID id.ImportID) ([]models.Edge, error) {
	if _, ok := t.state.imports[importID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	var edges []models.Edge
	for e := range t.state.edges {
		if t.state.citizens[e.From].ImportID == importID {
			edges = append(edges, e)
		}
	}
	slices.SortFunc(edges, compareEdges)
	return edges, nil
}

func (t *MemoryTx) relativesOf(storageID int64) []id.CitizenID {
	relatives := []id.CitizenID{}
	for e := range t.state.edges {
		if e.From == storageID {
			relatives = append(relatives, t.state.citizens[e.To].CitizenID)
		}
	}
	slices.Sort(relatives)
	return relatives
}

func compareEdges(a, b models.Edge) int {
	if c := cmp.Compare(a.From, b.From); c != 0 {
		return c
	}
	return cmp.Compare(a.To, b.To)
}

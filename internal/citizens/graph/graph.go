// Package graph maintains citizens and their relative edges.
//
// Edges are directed rows kept in symmetric pairs. Imports write one edge per
// declared relation because validated input already lists both directions;
// updates delete every edge touching the citizen and write both directions for
// each new relative. All operations run against a transaction-scoped Store
// supplied by the caller.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"census/internal/citizens/models"
	id "census/pkg/domain"
	dErrors "census/pkg/domain-errors"
	"census/pkg/platform/sentinel"
	pslices "census/pkg/platform/slices"
)

// Store is the transaction-scoped persistence the graph needs.
// Storage ids (int64) are the internal identities edges refer to.
type Store interface {
	CreateImport(ctx context.Context) (*models.Dataset, error)
	InsertCitizens(ctx context.Context, importID id.ImportID, citizens []models.Citizen) (map[id.CitizenID]int64, error)
	InsertEdges(ctx context.Context, edges []models.Edge) error
	// LockImport serializes writers of one import until the transaction ends.
	LockImport(ctx context.Context, importID id.ImportID) error
	FindCitizen(ctx context.Context, importID id.ImportID, citizenID id.CitizenID) (*models.Citizen, error)
	ResolveCitizens(ctx context.Context, importID id.ImportID, citizenIDs []id.CitizenID) (map[id.CitizenID]int64, error)
	UpdateCitizenFields(ctx context.Context, storageID int64, patch *models.CitizenPatch) error
	// DeleteEdges removes every edge where the citizen is either end.
	DeleteEdges(ctx context.Context, storageID int64) error
}

// CreateDataset persists a validated batch: the import, its citizens, then
// one edge per declared relation.
func CreateDataset(ctx context.Context, store Store, batch *models.ImportBatch) (id.ImportID, error) {
	dataset, err := store.CreateImport(ctx)
	if err != nil {
		return 0, fmt.Errorf("create import: %w", err)
	}

	storageIDs, err := store.InsertCitizens(ctx, dataset.ID, batch.Citizens)
	if err != nil {
		return 0, fmt.Errorf("insert citizens: %w", err)
	}

	edges, err := DeclaredEdges(batch.Citizens, storageIDs)
	if err != nil {
		return 0, err
	}
	if len(edges) > 0 {
		if err := store.InsertEdges(ctx, edges); err != nil {
			return 0, fmt.Errorf("insert edges: %w", err)
		}
	}
	return dataset.ID, nil
}

// UpdateCitizen applies patch to one citizen and returns its state re-read
// from the store. When the patch carries relatives the citizen's edge set is
// replaced in both directions.
func UpdateCitizen(ctx context.Context, store Store, importID id.ImportID, citizenID id.CitizenID, patch *models.CitizenPatch) (*models.Citizen, error) {
	if err := store.LockImport(ctx, importID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "import not found")
		}
		return nil, fmt.Errorf("lock import: %w", err)
	}

	target, err := findCitizen(ctx, store, importID, citizenID)
	if err != nil {
		return nil, err
	}

	if patch.HasFieldChanges() {
		if err := store.UpdateCitizenFields(ctx, target.ID, patch); err != nil {
			return nil, fmt.Errorf("update citizen fields: %w", err)
		}
	}

	if patch.Relatives != nil {
		if err := replaceRelatives(ctx, store, importID, target, *patch.Relatives); err != nil {
			return nil, err
		}
	}

	return findCitizen(ctx, store, importID, citizenID)
}

func replaceRelatives(ctx context.Context, store Store, importID id.ImportID, target *models.Citizen, relatives []id.CitizenID) error {
	relatives = pslices.Dedupe(relatives)
	if slices.Contains(relatives, target.CitizenID) {
		return dErrors.WithFields(dErrors.CodeValidation, "citizen cannot be its own relative", map[string][]string{
			"relatives": {"must not contain the citizen itself"},
		})
	}

	resolved, err := store.ResolveCitizens(ctx, importID, relatives)
	if err != nil {
		return fmt.Errorf("resolve relatives: %w", err)
	}
	if missing := missingIDs(relatives, resolved); len(missing) > 0 {
		return dErrors.WithFields(dErrors.CodeNotFound, "relatives not found", map[string][]string{
			"relatives": {"unknown citizen ids: " + joinIDs(missing)},
		})
	}

	if err := store.DeleteEdges(ctx, target.ID); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}

	to := make([]int64, 0, len(relatives))
	for _, rid := range relatives {
		to = append(to, resolved[rid])
	}
	if edges := MirroredEdges(target.ID, to); len(edges) > 0 {
		if err := store.InsertEdges(ctx, edges); err != nil {
			return fmt.Errorf("insert edges: %w", err)
		}
	}
	return nil
}

func findCitizen(ctx context.Context, store Store, importID id.ImportID, citizenID id.CitizenID) (*models.Citizen, error) {
	c, err := store.FindCitizen(ctx, importID, citizenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "citizen not found")
		}
		return nil, fmt.Errorf("find citizen: %w", err)
	}
	return c, nil
}

func missingIDs(want []id.CitizenID, resolved map[id.CitizenID]int64) []id.CitizenID {
	var missing []id.CitizenID
	for _, cid := range want {
		if _, ok := resolved[cid]; !ok {
			missing = append(missing, cid)
		}
	}
	slices.Sort(missing)
	return missing
}

func joinIDs(ids []id.CitizenID) string {
	parts := make([]string, len(ids))
	for i, cid := range ids {
		parts[i] = cid.String()
	}
	return strings.Join(parts, ", ")
}

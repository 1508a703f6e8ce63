package graph

import (
	"cmp"
	"fmt"
	"slices"

	"census/internal/citizens/models"
	id "census/pkg/domain"
	dErrors "census/pkg/domain-errors"
)

// DeclaredEdges returns one edge per declared relation, resolved to storage
// ids. No mirror edges are added.
func DeclaredEdges(citizens []models.Citizen, storageIDs map[id.CitizenID]int64) ([]models.Edge, error) {
	var edges []models.Edge
	for _, c := range citizens {
		from, ok := storageIDs[c.CitizenID]
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("citizen %d was not stored", c.CitizenID))
		}
		for _, rid := range c.Relatives {
			to, ok := storageIDs[rid]
			if !ok {
				return nil, dErrors.New(dErrors.CodeInvariantViolation,
					fmt.Sprintf("relative %d of citizen %d is not part of the import", rid, c.CitizenID))
			}
			edges = append(edges, models.Edge{From: from, To: to})
		}
	}
	return edges, nil
}

// MirroredEdges returns both directions between from and every id in to.
func MirroredEdges(from int64, to []int64) []models.Edge {
	edges := make([]models.Edge, 0, 2*len(to))
	for _, t := range to {
		e := models.Edge{From: from, To: t}
		edges = append(edges, e, e.Mirror())
	}
	return edges
}

// Violation describes an edge that breaks the symmetric-pair invariant.
type Violation struct {
	Edge   models.Edge
	Reason string
}

const (
	ReasonSelfEdge  = "self edge"
	ReasonDangling  = "missing mirror"
	ReasonDuplicate = "duplicate edge"
)

// CheckSymmetry reports self edges, duplicates and edges whose mirror is
// absent. An empty result means the edge set is a valid relative graph.
func CheckSymmetry(edges []models.Edge) []Violation {
	set := make(map[models.Edge]struct{}, len(edges))
	var violations []Violation
	for _, e := range edges {
		if e.From == e.To {
			violations = append(violations, Violation{Edge: e, Reason: ReasonSelfEdge})
		}
		if _, dup := set[e]; dup {
			violations = append(violations, Violation{Edge: e, Reason: ReasonDuplicate})
		}
		set[e] = struct{}{}
	}
	for e := range set {
		if _, ok := set[e.Mirror()]; !ok {
			violations = append(violations, Violation{Edge: e, Reason: ReasonDangling})
		}
	}
	slices.SortFunc(violations, func(a, b Violation) int {
		if c := cmp.Compare(a.Edge.From, b.Edge.From); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Edge.To, b.Edge.To); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	return violations
}

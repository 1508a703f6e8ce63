package validation

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"census/internal/citizens/models"
	id "census/pkg/domain"
	pslices "census/pkg/platform/slices"
)

const fieldCitizens = "citizens"

// Pair is an unordered relative relation, stored with Low <= High.
type Pair struct {
	Low  id.CitizenID
	High id.CitizenID
}

func newPair(a, b id.CitizenID) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// ValidateImport checks an import body and returns the normalized batch.
// today is the current calendar date; birth dates must be strictly earlier.
func (v *Validator) ValidateImport(body []byte, today time.Time) (*models.ImportBatch, error) {
	errs := Errors{}
	top, ok := decodeObject(body)
	if !ok {
		errs.Add("", "must be a JSON object")
		return nil, errs.Err("invalid import")
	}
	for key := range top {
		if key != fieldCitizens {
			errs.Add(key, "unknown field")
		}
	}

	raw, ok := top[fieldCitizens]
	if !ok || isNull(raw) {
		errs.Add(fieldCitizens, "is required")
		return nil, errs.Err("invalid import")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		errs.Add(fieldCitizens, "must be a list")
		return nil, errs.Err("invalid import")
	}
	if len(items) == 0 {
		errs.Add(fieldCitizens, "must not be empty")
		return nil, errs.Err("invalid import")
	}

	batch := &models.ImportBatch{Citizens: make([]models.Citizen, 0, len(items))}
	seen := make(map[id.CitizenID]int, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", fieldCitizens, i)
		rec, itemErrs := v.decodeCitizen(item, modeFull, nil, today)
		if len(itemErrs) > 0 {
			errs.Merge(path, itemErrs)
			continue
		}
		c := rec.citizen()
		if first, dup := seen[c.CitizenID]; dup {
			errs.Add(path+"."+FieldCitizenID, fmt.Sprintf("duplicates %s[%d]", fieldCitizens, first))
			continue
		}
		seen[c.CitizenID] = i
		batch.Citizens = append(batch.Citizens, c)
	}
	if len(errs) > 0 {
		return nil, errs.Err("invalid import")
	}

	for _, p := range UnmatchedPairs(batch.Citizens) {
		errs.Add(fieldCitizens, fmt.Sprintf("relation between citizens %d and %d is not mutual", p.Low, p.High))
	}
	if len(errs) > 0 {
		return nil, errs.Err("asymmetric relatives")
	}
	for i := range batch.Citizens {
		batch.Citizens[i].Relatives = pslices.Dedupe(batch.Citizens[i].Relatives)
	}
	return batch, nil
}

// UnmatchedPairs returns the relations declared from only one side.
// Each declaration toggles its pair, so a mutual relation cancels out and a
// repeated declaration counts again: [2, 2] from 1 needs [1, 1] from 2.
func UnmatchedPairs(citizens []models.Citizen) []Pair {
	open := make(map[Pair]struct{})
	for _, c := range citizens {
		for _, r := range c.Relatives {
			p := newPair(c.CitizenID, r)
			if _, ok := open[p]; ok {
				delete(open, p)
			} else {
				open[p] = struct{}{}
			}
		}
	}

	pairs := make([]Pair, 0, len(open))
	for p := range open {
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		if c := cmp.Compare(a.Low, b.Low); c != 0 {
			return c
		}
		return cmp.Compare(a.High, b.High)
	})
	return pairs
}

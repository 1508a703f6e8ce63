// Package stats computes read-side aggregates over an import's citizens.
// Functions are pure; callers load citizens with their relatives first.
package stats

import (
	"cmp"
	"slices"
	"strconv"

	"census/internal/citizens/models"
	id "census/pkg/domain"
)

// BirthdayPresents counts, per month, how many presents each citizen buys:
// a citizen born in month M gives one present to each of their relatives in M.
// All twelve months are present in the result; lists are ordered by citizen id.
func BirthdayPresents(citizens []models.Citizen) models.BirthdayStats {
	var counts [13]map[id.CitizenID]int
	for _, c := range citizens {
		if len(c.Relatives) == 0 {
			continue
		}
		month := int(c.BirthDate.Month())
		if counts[month] == nil {
			counts[month] = make(map[id.CitizenID]int)
		}
		for _, rid := range c.Relatives {
			counts[month][rid]++
		}
	}

	result := make(models.BirthdayStats, 12)
	for month := 1; month <= 12; month++ {
		entries := make([]models.Presents, 0, len(counts[month]))
		for cid, n := range counts[month] {
			entries = append(entries, models.Presents{CitizenID: cid, Presents: n})
		}
		slices.SortFunc(entries, func(a, b models.Presents) int {
			return cmp.Compare(a.CitizenID, b.CitizenID)
		})
		result[strconv.Itoa(month)] = entries
	}
	return result
}

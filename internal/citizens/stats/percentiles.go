package stats

import (
	"math"
	"slices"
	"time"

	"census/internal/citizens/models"
)

// Age returns full years between birth and today. The age increases on the
// birthday itself.
func Age(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		years--
	}
	return years
}

// Percentile interpolates linearly between the closest ranks of sorted
// values, with rank = p/100 * (n-1). Matches numpy.percentile's default.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AgePercentiles returns p50, p75 and p99 of citizen ages per town, ordered
// by town name.
func AgePercentiles(citizens []models.Citizen, today time.Time) []models.TownAgePercentiles {
	ages := make(map[string][]float64)
	for _, c := range citizens {
		ages[c.Town] = append(ages[c.Town], float64(Age(c.BirthDate, today)))
	}

	towns := make([]string, 0, len(ages))
	for town := range ages {
		towns = append(towns, town)
	}
	slices.Sort(towns)

	result := make([]models.TownAgePercentiles, 0, len(towns))
	for _, town := range towns {
		sorted := ages[town]
		slices.Sort(sorted)
		result = append(result, models.TownAgePercentiles{
			Town: town,
			P50:  Round2(Percentile(sorted, 50)),
			P75:  Round2(Percentile(sorted, 75)),
			P99:  Round2(Percentile(sorted, 99)),
		})
	}
	return result
}

package models

import id "census/pkg/domain"

// Presents is the number of presents a citizen receives in one month.
type Presents struct {
	CitizenID id.CitizenID
	Presents  int
}

// BirthdayStats maps month numbers "1".."12" to present counts. All twelve
// keys are always present.
type BirthdayStats map[string][]Presents

// TownAgePercentiles holds age percentiles of one town.
type TownAgePercentiles struct {
	Town string
	P50  float64
	P75  float64
	P99  float64
}

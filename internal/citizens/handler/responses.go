package handler

import (
	"slices"
	"strconv"

	"census/internal/citizens/models"
)

type envelope struct {
	Data any `json:"data"`
}

type importCreatedResponse struct {
	ImportID int64 `json:"import_id"`
}

type citizenResponse struct {
	CitizenID int64   `json:"citizen_id"`
	Town      string  `json:"town"`
	Street    string  `json:"street"`
	Building  string  `json:"building"`
	Apartment int64   `json:"apartment"`
	Name      string  `json:"name"`
	BirthDate string  `json:"birth_date"`
	Gender    string  `json:"gender"`
	Relatives []int64 `json:"relatives"`
}

type presentsResponse struct {
	CitizenID int64 `json:"citizen_id"`
	Presents  int   `json:"presents"`
}

type townPercentilesResponse struct {
	Town string  `json:"town"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P99  float64 `json:"p99"`
}

func toCitizenResponse(c models.Citizen) citizenResponse {
	relatives := make([]int64, 0, len(c.Relatives))
	for _, rid := range c.Relatives {
		relatives = append(relatives, int64(rid))
	}
	slices.Sort(relatives)

	return citizenResponse{
		CitizenID: int64(c.CitizenID),
		Town:      c.Town,
		Street:    c.Street,
		Building:  c.Building,
		Apartment: c.Apartment,
		Name:      c.Name,
		BirthDate: c.BirthDate.Format(models.DateLayout),
		Gender:    string(c.Gender),
		Relatives: relatives,
	}
}

func toCitizenResponses(citizens []models.Citizen) []citizenResponse {
	out := make([]citizenResponse, 0, len(citizens))
	for _, c := range citizens {
		out = append(out, toCitizenResponse(c))
	}
	return out
}

// toBirthdaysResponse always emits the twelve month keys.
func toBirthdaysResponse(stats models.BirthdayStats) map[string][]presentsResponse {
	out := make(map[string][]presentsResponse, 12)
	for month := 1; month <= 12; month++ {
		key := strconv.Itoa(month)
		list := stats[key]
		entries := make([]presentsResponse, 0, len(list))
		for _, p := range list {
			entries = append(entries, presentsResponse{CitizenID: int64(p.CitizenID), Presents: p.Presents})
		}
		out[key] = entries
	}
	return out
}

func toPercentilesResponse(towns []models.TownAgePercentiles) []townPercentilesResponse {
	out := make([]townPercentilesResponse, 0, len(towns))
	for _, t := range towns {
		out = append(out, townPercentilesResponse{Town: t.Town, P50: t.P50, P75: t.P75, P99: t.P99})
	}
	return out
}

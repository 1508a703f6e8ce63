package models

import (
	"time"

	id "census/pkg/domain"
)

// DateLayout is the wire format of birth dates (dd.mm.yyyy).
const DateLayout = "02.01.2006"

// Gender is the closed set of citizen genders.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// Dataset is one imported cohort of citizens.
type Dataset struct {
	ID        id.ImportID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Citizen is a member of exactly one dataset.
//
// Invariants:
//   - CitizenID is unique within ImportID
//   - Relatives never contains CitizenID
//   - Relatives is derived from stored edges and sorted ascending
type Citizen struct {
	// ID is the storage identity; edges reference it, never CitizenID.
	ID        int64
	ImportID  id.ImportID
	CitizenID id.CitizenID
	Town      string
	Street    string
	Building  string
	Apartment int64
	Name      string
	BirthDate time.Time
	Gender    Gender
	Relatives []id.CitizenID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImportBatch is a validated, normalized import payload. Every declared
// relation appears from both sides.
type ImportBatch struct {
	Citizens []Citizen
}

// CitizenPatch carries the fields of a partial update. Nil means unchanged.
// Relatives distinguishes absent (nil) from an explicit empty list.
type CitizenPatch struct {
	Town      *string
	Street    *string
	Building  *string
	Apartment *int64
	Name      *string
	BirthDate *time.Time
	Gender    *Gender
	Relatives *[]id.CitizenID
}

// HasFieldChanges reports whether the patch touches any non-relative column.
func (p *CitizenPatch) HasFieldChanges() bool {
	return p.Town != nil || p.Street != nil || p.Building != nil || p.Apartment != nil ||
		p.Name != nil || p.BirthDate != nil || p.Gender != nil
}

// ApplyFields copies the non-relative fields of the patch onto c.
func (p *CitizenPatch) ApplyFields(c *Citizen) {
	if p.Town != nil {
		c.Town = *p.Town
	}
	if p.Street != nil {
		c.Street = *p.Street
	}
	if p.Building != nil {
		c.Building = *p.Building
	}
	if p.Apartment != nil {
		c.Apartment = *p.Apartment
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.BirthDate != nil {
		c.BirthDate = *p.BirthDate
	}
	if p.Gender != nil {
		c.Gender = *p.Gender
	}
}

// Edge is a directed relative link between two stored citizens.
type Edge struct {
	From int64
	To   int64
}

// Mirror returns the opposite direction of e.
func (e Edge) Mirror() Edge {
	return Edge{From: e.To, To: e.From}
}

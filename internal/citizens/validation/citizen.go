package validation

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"census/internal/citizens/models"
	id "census/pkg/domain"
)

type mode int

const (
	modeFull mode = iota
	modePartial
)

// record is a decoded citizen object. Unset fields stay nil.
type record struct {
	citizenID *id.CitizenID
	patch     models.CitizenPatch
}

func (r record) citizen() models.Citizen {
	var c models.Citizen
	c.CitizenID = *r.citizenID
	r.patch.ApplyFields(&c)
	c.Relatives = *r.patch.Relatives
	return c
}

// decodeCitizen decodes and checks one citizen object. self is the identity
// to reject in relatives when the object does not carry citizen_id itself.
func (v *Validator) decodeCitizen(raw json.RawMessage, m mode, self *id.CitizenID, today time.Time) (record, Errors) {
	errs := Errors{}
	obj, ok := decodeObject(raw)
	if !ok {
		errs.Add("", "must be an object")
		return record{}, errs
	}

	for key := range obj {
		if !slices.Contains(citizenFieldNames, key) {
			errs.Add(key, "unknown field")
		}
	}
	switch m {
	case modeFull:
		for _, name := range citizenFieldNames {
			if _, ok := obj[name]; !ok {
				errs.Add(name, "is required")
			}
		}
	case modePartial:
		if len(obj) == 0 {
			errs.Add("", "at least one field is required")
		}
		if _, ok := obj[FieldCitizenID]; ok {
			errs.Add(FieldCitizenID, "must not be provided when updating a citizen")
			delete(obj, FieldCitizenID)
		}
	}

	var (
		rec     record
		fields  citizenFields
		checked []string
	)
	present := func(name string) (json.RawMessage, bool) {
		value, ok := obj[name]
		if !ok {
			return nil, false
		}
		if isNull(value) {
			errs.Add(name, "must not be null")
			return nil, false
		}
		return value, true
	}
	str := func(name, goName string, dst *string, out **string) {
		value, ok := present(name)
		if !ok {
			return
		}
		s, ok := decodeString(value)
		if !ok {
			errs.Add(name, "must be a string")
			return
		}
		*dst = s
		*out = &s
		checked = append(checked, goName)
	}
	integer := func(name, goName string, dst *int64) bool {
		value, ok := present(name)
		if !ok {
			return false
		}
		n, ok := decodeInt(value)
		if !ok {
			errs.Add(name, "must be an integer")
			return false
		}
		*dst = n
		checked = append(checked, goName)
		return true
	}

	if integer(FieldCitizenID, "CitizenID", &fields.CitizenID) {
		cid := id.CitizenID(fields.CitizenID)
		rec.citizenID = &cid
		self = &cid
	}
	str(FieldTown, "Town", &fields.Town, &rec.patch.Town)
	str(FieldStreet, "Street", &fields.Street, &rec.patch.Street)
	str(FieldBuilding, "Building", &fields.Building, &rec.patch.Building)
	if integer(FieldApartment, "Apartment", &fields.Apartment) {
		apartment := fields.Apartment
		rec.patch.Apartment = &apartment
	}
	str(FieldName, "Name", &fields.Name, &rec.patch.Name)

	var gender *string
	str(FieldGender, "Gender", &fields.Gender, &gender)
	if gender != nil {
		g := models.Gender(*gender)
		rec.patch.Gender = &g
	}

	v.checkFields(fields, checked, errs)

	if value, ok := present(FieldBirthDate); ok {
		if date, ok := decodeBirthDate(value, today, errs); ok {
			rec.patch.BirthDate = &date
		}
	}
	if value, ok := present(FieldRelatives); ok {
		if relatives, ok := decodeRelatives(value, self, errs); ok {
			rec.patch.Relatives = &relatives
		}
	}
	return rec, errs
}

func decodeBirthDate(raw json.RawMessage, today time.Time, errs Errors) (time.Time, bool) {
	s, ok := decodeString(raw)
	if !ok {
		errs.Add(FieldBirthDate, "must be a string")
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil || date.Year() < 1 {
		errs.Add(FieldBirthDate, "must be a date in dd.mm.yyyy format")
		return time.Time{}, false
	}
	if !date.Before(today) {
		errs.Add(FieldBirthDate, "must be earlier than the current date")
		return time.Time{}, false
	}
	return date, true
}

// decodeRelatives returns the relative ids as declared, duplicates included.
// The import symmetry check counts every declaration.
func decodeRelatives(raw json.RawMessage, self *id.CitizenID, errs Errors) ([]id.CitizenID, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		errs.Add(FieldRelatives, "must be a list of citizen ids")
		return nil, false
	}
	relatives := make([]id.CitizenID, 0, len(items))
	valid := true
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", FieldRelatives, i)
		n, ok := decodeInt(item)
		switch {
		case isNull(item) || !ok:
			errs.Add(path, "must be an integer")
			valid = false
		case n < 0:
			errs.Add(path, "must be non-negative")
			valid = false
		default:
			relatives = append(relatives, id.CitizenID(n))
		}
	}
	if self != nil && slices.Contains(relatives, *self) {
		errs.Add(FieldRelatives, "must not contain the citizen itself")
		valid = false
	}
	return relatives, valid
}

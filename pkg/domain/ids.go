package domain

import (
	"strconv"

	dErrors "census/pkg/domain-errors"
)

// ImportID identifies a dataset. Assigned by storage on import.
type ImportID int64

// CitizenID is the caller-assigned citizen identifier, unique within one import.
type CitizenID int64

// maxIDDigits bounds parsing before strconv sees the input; int64 has 19 digits.
const maxIDDigits = 19

func (id ImportID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id CitizenID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseImportID parses a path segment into an ImportID.
func ParseImportID(s string) (ImportID, error) {
	v, err := parseID(s, "import_id")
	if err != nil {
		return 0, err
	}
	return ImportID(v), nil
}

// ParseCitizenID parses a path segment into a CitizenID.
func ParseCitizenID(s string) (CitizenID, error) {
	v, err := parseID(s, "citizen_id")
	if err != nil {
		return 0, err
	}
	return CitizenID(v), nil
}

// parseID accepts only unsigned decimal digits, matching the \d+ route shape.
// Signs, whitespace and leading '+' are rejected even though strconv tolerates some of them.
func parseID(s, field string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDDigits {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" is out of range")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, dErrors.New(dErrors.CodeInvalidInput, field+" must be a non-negative integer")
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" is out of range")
	}
	return v, nil
}

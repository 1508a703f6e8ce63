// Package validation checks citizen import and update payloads.
//
// Payloads are inspected as raw JSON objects so that missing, null and unknown
// keys can be told apart; each present field is then decoded on its own and
// checked with go-playground/validator. Every violation is collected into a
// single Errors report rather than stopping at the first one.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// MaxStringLength is the longest accepted string field, counted in characters.
const MaxStringLength = 256

// Field names of a citizen object.
const (
	FieldCitizenID = "citizen_id"
	FieldTown      = "town"
	FieldStreet    = "street"
	FieldBuilding  = "building"
	FieldApartment = "apartment"
	FieldName      = "name"
	FieldBirthDate = "birth_date"
	FieldGender    = "gender"
	FieldRelatives = "relatives"
)

var citizenFieldNames = []string{
	FieldCitizenID, FieldTown, FieldStreet, FieldBuilding, FieldApartment,
	FieldName, FieldBirthDate, FieldGender, FieldRelatives,
}

// citizenFields holds the scalar fields checked through struct tags.
// birth_date and relatives need the current date or list handling and are
// checked by hand.
type citizenFields struct {
	CitizenID int64  `json:"citizen_id" validate:"gte=0"`
	Town      string `json:"town" validate:"notblank,max=256,letterordigit"`
	Street    string `json:"street" validate:"notblank,max=256,letterordigit"`
	Building  string `json:"building" validate:"notblank,max=256,letterordigit"`
	Apartment int64  `json:"apartment" validate:"gte=0"`
	Name      string `json:"name" validate:"notblank,max=256"`
	Gender    string `json:"gender" validate:"oneof=male female"`
}

// Validator validates import and patch payloads. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("letterordigit", hasLetterOrDigit)
	return &Validator{validate: v}
}

// hasLetterOrDigit accepts strings with at least one Latin letter, Russian
// letter (а-я, А-Я) or ASCII digit.
func hasLetterOrDigit(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
			return true
		case 'а' <= r && r <= 'я', 'А' <= r && r <= 'Я':
			return true
		case '0' <= r && r <= '9':
			return true
		}
	}
	return false
}

// checkFields runs struct-tag validation for the named Go fields only, so
// fields that failed to decode are not reported twice.
func (v *Validator) checkFields(fields citizenFields, names []string, errs Errors) {
	if len(names) == 0 {
		return
	}
	err := v.validate.StructPartial(fields, names...)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), messageFor(fe))
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return "must not be blank"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "letterordigit":
		return "must contain at least one letter or digit"
	case "gte":
		return "must be non-negative"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func decodeInt(raw json.RawMessage) (int64, bool) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

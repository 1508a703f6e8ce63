package validation

import (
	"strings"

	dErrors "census/pkg/domain-errors"
)

// BodyField is the report key for problems with the payload as a whole.
const BodyField = "body"

// Errors is a validation report keyed by JSON path, e.g. "citizens[3].town".
type Errors map[string][]string

func (e Errors) Add(path, message string) {
	if path == "" {
		path = BodyField
	}
	e[path] = append(e[path], message)
}

// Merge copies other into e with every key placed under prefix.
func (e Errors) Merge(prefix string, other Errors) {
	for key, messages := range other {
		path := joinPath(prefix, key)
		e[path] = append(e[path], messages...)
	}
}

// Err returns the report as a validation domain error, or nil when empty.
func (e Errors) Err(message string) error {
	if len(e) == 0 {
		return nil
	}
	return dErrors.WithFields(dErrors.CodeValidation, message, map[string][]string(e))
}

func joinPath(prefix, key string) string {
	if key == BodyField {
		key = ""
	}
	switch {
	case prefix == "" && key == "":
		return BodyField
	case key == "":
		return prefix
	case prefix == "":
		return key
	case strings.HasPrefix(key, "["):
		return prefix + key
	default:
		return prefix + "." + key
	}
}

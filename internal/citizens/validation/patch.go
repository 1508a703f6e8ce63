package validation

import (
	"time"

	"census/internal/citizens/models"
	id "census/pkg/domain"
)

// ValidatePatch checks a partial citizen update. citizenID is the target
// taken from the request path and may not appear among the relatives.
func (v *Validator) ValidatePatch(body []byte, citizenID id.CitizenID, today time.Time) (*models.CitizenPatch, error) {
	rec, errs := v.decodeCitizen(body, modePartial, &citizenID, today)
	if len(errs) > 0 {
		report := Errors{}
		report.Merge("", errs)
		return nil, report.Err("invalid citizen update")
	}
	return &rec.patch, nil
}

package imports

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(ctx context.Context, method, path string, body []byte) error
	Status() int
	Body() []byte
	Data(v any) error
	SetImportID(importID string)
	Expand(path string) string
}

// RegisterSteps registers import-specific step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &importSteps{tc: tc}

	ctx.Step(`^an import with citizens:$`, steps.importCitizens)
	ctx.Step(`^citizen (\d+) should have relatives "([^"]*)"$`, steps.citizenShouldHaveRelatives)
	ctx.Step(`^month "([^"]*)" should list presents "([^"]*)"$`, steps.monthShouldListPresents)
	ctx.Step(`^the age report should list towns "([^"]*)"$`, steps.ageReportShouldListTowns)
}

type importSteps struct {
	tc TestContext
}

type citizen struct {
	CitizenID int64   `json:"citizen_id"`
	Relatives []int64 `json:"relatives"`
}

type presents struct {
	CitizenID int64 `json:"citizen_id"`
	Presents  int   `json:"presents"`
}

type townPercentiles struct {
	Town string  `json:"town"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P99  float64 `json:"p99"`
}

func (s *importSteps) importCitizens(ctx context.Context, body *godog.DocString) error {
	if err := s.tc.Do(ctx, "POST", "/imports", []byte(body.Content)); err != nil {
		return err
	}
	if s.tc.Status() != 201 {
		return fmt.Errorf("import failed with %d: %s", s.tc.Status(), s.tc.Body())
	}
	var created struct {
		ImportID int64 `json:"import_id"`
	}
	if err := s.tc.Data(&created); err != nil {
		return err
	}
	s.tc.SetImportID(strconv.FormatInt(created.ImportID, 10))
	return nil
}

func (s *importSteps) citizenShouldHaveRelatives(ctx context.Context, citizenID int64, expected string) error {
	if err := s.tc.Do(ctx, "GET", s.tc.Expand("/imports/{import_id}/citizens"), nil); err != nil {
		return err
	}
	var citizens []citizen
	if err := s.tc.Data(&citizens); err != nil {
		return err
	}
	want, err := parseIDs(expected)
	if err != nil {
		return err
	}
	for _, c := range citizens {
		if c.CitizenID != citizenID {
			continue
		}
		if !slices.Equal(c.Relatives, want) {
			return fmt.Errorf("citizen %d: expected relatives %v, got %v", citizenID, want, c.Relatives)
		}
		return nil
	}
	return fmt.Errorf("citizen %d not found", citizenID)
}

// monthShouldListPresents expects "citizen:count" pairs separated by commas,
// or an empty string for a month without presents.
func (s *importSteps) monthShouldListPresents(ctx context.Context, month, expected string) error {
	if err := s.tc.Do(ctx, "GET", s.tc.Expand("/imports/{import_id}/citizens/birthdays"), nil); err != nil {
		return err
	}
	var months map[string][]presents
	if err := s.tc.Data(&months); err != nil {
		return err
	}
	got, ok := months[month]
	if !ok {
		return fmt.Errorf("month %q missing from %v", month, months)
	}

	var want []presents
	for _, pair := range splitList(expected) {
		cid, count, found := strings.Cut(pair, ":")
		if !found {
			return fmt.Errorf("malformed presents %q", pair)
		}
		id, err := strconv.ParseInt(cid, 10, 64)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			return err
		}
		want = append(want, presents{CitizenID: id, Presents: n})
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("month %s: expected %v, got %v", month, want, got)
	}
	return nil
}

// ageReportShouldListTowns checks town order and that percentiles are
// monotonic. Exact values depend on the current date.
func (s *importSteps) ageReportShouldListTowns(ctx context.Context, expected string) error {
	if err := s.tc.Do(ctx, "GET", s.tc.Expand("/imports/{import_id}/towns/stat/percentile/age"), nil); err != nil {
		return err
	}
	var towns []townPercentiles
	if err := s.tc.Data(&towns); err != nil {
		return err
	}
	got := make([]string, 0, len(towns))
	for _, t := range towns {
		if t.P50 > t.P75 || t.P75 > t.P99 {
			return fmt.Errorf("town %s: percentiles not monotonic: %v/%v/%v", t.Town, t.P50, t.P75, t.P99)
		}
		got = append(got, t.Town)
	}
	if want := splitList(expected); !slices.Equal(got, want) {
		return fmt.Errorf("expected towns %v, got %v", want, got)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	ids := []int64{}
	for _, part := range splitList(s) {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, nil
}

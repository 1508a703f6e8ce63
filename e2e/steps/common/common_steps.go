package common

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(ctx context.Context, method, path string, body []byte) error
	Status() int
	Body() []byte
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I (GET|POST|PATCH) "([^"]*)"$`, steps.request)
	ctx.Step(`^I (POST|PATCH) "([^"]*)" with body:$`, steps.requestWithBody)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
	ctx.Step(`^the error should mention field "([^"]*)"$`, steps.errorShouldMentionField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) request(ctx context.Context, method, path string) error {
	return s.tc.Do(ctx, method, path, nil)
}

func (s *commonSteps) requestWithBody(ctx context.Context, method, path string, body *godog.DocString) error {
	return s.tc.Do(ctx, method, path, []byte(body.Content))
}

func (s *commonSteps) statusShouldBe(expected int) error {
	if s.tc.Status() != expected {
		return fmt.Errorf("expected status %d (%s), got %d: %s",
			expected, http.StatusText(expected), s.tc.Status(), s.tc.Body())
	}
	return nil
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

func (s *commonSteps) decodeError() (errorResponse, error) {
	var resp errorResponse
	if err := json.Unmarshal(s.tc.Body(), &resp); err != nil {
		return resp, fmt.Errorf("decode error response %q: %w", s.tc.Body(), err)
	}
	return resp, nil
}

func (s *commonSteps) errorCodeShouldBe(code string) error {
	resp, err := s.decodeError()
	if err != nil {
		return err
	}
	if resp.Error != code {
		return fmt.Errorf("expected error %q, got %q", code, resp.Error)
	}
	return nil
}

func (s *commonSteps) errorShouldMentionField(field string) error {
	resp, err := s.decodeError()
	if err != nil {
		return err
	}
	if _, ok := resp.Fields[field]; ok {
		return nil
	}
	known := make([]string, 0, len(resp.Fields))
	for k := range resp.Fields {
		known = append(known, k)
	}
	return fmt.Errorf("expected field %q in error report, got [%s]", field, strings.Join(known, ", "))
}

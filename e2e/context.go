// Package e2e drives a running census server through its HTTP API with
// godog scenarios.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP state.
type TestContext struct {
	baseURL  string
	client   *http.Client
	status   int
	body     []byte
	importID string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears the previous scenario's response.
func (tc *TestContext) Reset() {
	tc.status = 0
	tc.body = nil
	tc.importID = ""
}

func (tc *TestContext) Do(ctx context.Context, method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.baseURL+tc.Expand(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

// Expand replaces {import_id} with the import created in this scenario.
func (tc *TestContext) Expand(path string) string {
	return strings.ReplaceAll(path, "{import_id}", tc.importID)
}

func (tc *TestContext) Status() int {
	return tc.status
}

func (tc *TestContext) Body() []byte {
	return tc.body
}

// Data decodes the "data" member of the last response.
func (tc *TestContext) Data(v any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(tc.body, &envelope); err != nil {
		return fmt.Errorf("decode response %q: %w", tc.body, err)
	}
	return json.Unmarshal(envelope.Data, v)
}

func (tc *TestContext) SetImportID(importID string) {
	tc.importID = importID
}

// Package e2e drives a running simrelease server through its HTTP API.
// Point E2E_BASE_URL at a server started with the dev configuration.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TestContext carries the HTTP client and the last exchange across the
// steps of one scenario.
type TestContext struct {
	BaseURL  string
	Username string
	Password string

	client      *http.Client
	accessToken string
	status      int
	body        []byte
}

// NewTestContext reads the target server and credentials from the
// environment.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:  envOr("E2E_BASE_URL", "http://localhost:8080"),
		Username: envOr("E2E_USERNAME", "operator"),
		Password: os.Getenv("E2E_PASSWORD"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.accessToken = ""
	tc.status = 0
	tc.body = nil
}

func (tc *TestContext) POST(path string, body any, headers map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(payload), headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
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

func (tc *TestContext) GetLastResponseStatus() int  { return tc.status }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.body }
func (tc *TestContext) GetAccessToken() string      { return tc.accessToken }
func (tc *TestContext) SetAccessToken(t string)     { tc.accessToken = t }
func (tc *TestContext) Credentials() (string, string) {
	return tc.Username, tc.Password
}

// GetResponseField returns a top-level field of the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.body, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, tc.body)
	}
	v, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.body)
	}
	return v, nil
}

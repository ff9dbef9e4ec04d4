package liberation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetLastResponseBody() []byte
}

// RegisterSteps registers SIM liberation and AUC steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &liberationSteps{tc: tc}

	ctx.Step(`^I liberate "([^"]*)" in "([^"]*)"$`, steps.liberateSingle)
	ctx.Step(`^I liberate the batch in "([^"]*)":$`, steps.liberateBatch)
	ctx.Step(`^I request AUC for "([^"]*)" in "([^"]*)"$`, steps.requestAuc)
	ctx.Step(`^the result for "([^"]*)" should have status "([^"]*)" and message "([^"]*)"$`, steps.resultShouldBe)
	ctx.Step(`^there should be (\d+) results?$`, steps.resultCount)
	ctx.Step(`^the summary message should start with "([^"]*)"$`, steps.summaryStartsWith)
}

type result struct {
	Sim     string `json:"sim"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type liberationResponse struct {
	Success bool     `json:"success"`
	Results []result `json:"results"`
	Message string   `json:"message"`
}

type liberationSteps struct {
	tc TestContext
}

func (s *liberationSteps) liberateSingle(ctx context.Context, sim, env string) error {
	return s.tc.POST("/sim/creation-liberation", map[string]any{
		"mode":        "single",
		"data":        sim,
		"environment": env,
	}, nil)
}

func (s *liberationSteps) liberateBatch(ctx context.Context, env string, doc *godog.DocString) error {
	return s.tc.POST("/sim/creation-liberation", map[string]any{
		"mode":        "batch",
		"data":        doc.Content,
		"environment": env,
	}, nil)
}

func (s *liberationSteps) requestAuc(ctx context.Context, sim, env string) error {
	return s.tc.POST("/sim/auc", map[string]any{
		"data":        []string{sim},
		"environment": env,
	}, nil)
}

func (s *liberationSteps) decode() (*liberationResponse, error) {
	var resp liberationResponse
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &resp); err != nil {
		return nil, fmt.Errorf("decode liberation response: %w", err)
	}
	return &resp, nil
}

func (s *liberationSteps) resultShouldBe(ctx context.Context, sim, status, message string) error {
	resp, err := s.decode()
	if err != nil {
		return err
	}
	for _, r := range resp.Results {
		if r.Sim != sim {
			continue
		}
		if r.Status != status || r.Message != message {
			return fmt.Errorf("result for %s: got %s %q, want %s %q", sim, r.Status, r.Message, status, message)
		}
		return nil
	}
	return fmt.Errorf("no result for %s in %s", sim, s.tc.GetLastResponseBody())
}

func (s *liberationSteps) resultCount(ctx context.Context, n int) error {
	resp, err := s.decode()
	if err != nil {
		return err
	}
	if len(resp.Results) != n {
		return fmt.Errorf("expected %d results, got %d", n, len(resp.Results))
	}
	return nil
}

func (s *liberationSteps) summaryStartsWith(ctx context.Context, prefix string) error {
	resp, err := s.decode()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp.Message, prefix) {
		return fmt.Errorf("summary %q does not start with %q", resp.Message, prefix)
	}
	return nil
}

package e2e

import (
	"github.com/cucumber/godog"

	"simrelease/e2e/steps/auth"
	"simrelease/e2e/steps/common"
	"simrelease/e2e/steps/liberation"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	liberation.RegisterSteps(ctx, tc)
}

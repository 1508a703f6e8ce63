package e2e

import (
	"github.com/cucumber/godog"

	"census/e2e/steps/common"
	"census/e2e/steps/imports"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	imports.RegisterSteps(ctx, tc)
}

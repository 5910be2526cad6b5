package e2e

import (
	"github.com/cucumber/godog"

	"hemogrid/e2e/steps/common"
	"hemogrid/e2e/steps/requests"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Users, raw requests and response assertions
	common.RegisterSteps(ctx, tc)

	// Blood request lifecycle and acceptance
	requests.RegisterSteps(ctx, tc)
}

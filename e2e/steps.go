package e2e

import (
	"github.com/cucumber/godog"

	"onboard/e2e/steps/common"
	"onboard/e2e/steps/ratelimit"
	"onboard/e2e/steps/signup"
)

// RegisterSteps registers all step definitions from the step packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	signup.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}

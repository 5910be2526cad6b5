//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against a running server, by default
// http://localhost:8080. Set E2E_BASE_URL and the JWT_* variables to match
// the target.
func TestFeatures(t *testing.T) {
	tc := NewTestContext()
	suite := godog.TestSuite{
		Name: "hemogrid",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

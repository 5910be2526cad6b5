package common

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	RegisterUser(alias, role, bloodGroup string, verified bool) error
	ActAs(alias string) error
	Do(method, path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers user setup, raw request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Background
	ctx.Step(`^a verified (donor|requester) "([^"]*)" with blood group "([^"]*)"$`, steps.verifiedUser)
	ctx.Step(`^an unverified donor "([^"]*)" with blood group "([^"]*)"$`, steps.unverifiedDonor)
	ctx.Step(`^I am "([^"]*)"$`, steps.actAs)
	ctx.Step(`^I am not authenticated$`, steps.anonymous)

	// Generic requests
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	// Assertions
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response should not contain field "([^"]*)"$`, steps.fieldShouldBeAbsent)
	ctx.Step(`^the response should be a list of (\d+) items?$`, steps.listLength)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) verifiedUser(ctx context.Context, role, alias, group string) error {
	return s.tc.RegisterUser(alias, role, group, true)
}

func (s *commonSteps) unverifiedDonor(ctx context.Context, alias, group string) error {
	return s.tc.RegisterUser(alias, "donor", group, false)
}

func (s *commonSteps) actAs(ctx context.Context, alias string) error {
	return s.tc.ActAs(alias)
}

func (s *commonSteps) anonymous(ctx context.Context) error {
	return s.tc.ActAs("")
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.Do(http.MethodGet, path, nil)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(ctx context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeAbsent(ctx context.Context, field string) error {
	if _, err := s.tc.GetResponseField(field); err == nil {
		return fmt.Errorf("field %q should not be present: %s", field, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) listLength(ctx context.Context, want int) error {
	var list []json.RawMessage
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &list); err != nil {
		return fmt.Errorf("response is not a JSON list: %w", err)
	}
	if len(list) != want {
		return fmt.Errorf("expected %d items, got %d", want, len(list))
	}
	return nil
}

package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ActAs(alias string) error
	Do(method, path string, body any) error
	DoAs(alias, method, path string, body any) (int, []byte, error)
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Save(key, value string)
	Saved(key string) (string, error)
}

const requestKey = "request_id"

// Fan-out runs after the create response; poll for its effects.
const (
	pollInterval = 100 * time.Millisecond
	pollTimeout  = 5 * time.Second
)

// RegisterSteps registers blood request lifecycle steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &requestSteps{tc: tc}

	// Creation
	ctx.Step(`^"([^"]*)" posts a request for (\d+) units? of "([^"]*)" blood$`, steps.postRequest)
	ctx.Step(`^"([^"]*)" posts a request for "([^"]*)" blood expiring in (\d+) seconds?$`, steps.postExpiringRequest)

	// Lifecycle actions on the saved request
	ctx.Step(`^"([^"]*)" accepts the request$`, steps.accept)
	ctx.Step(`^"([^"]*)" completes the request$`, steps.complete)
	ctx.Step(`^"([^"]*)" cancels the request$`, steps.cancel)
	ctx.Step(`^"([^"]*)" sets the request status to "([^"]*)"$`, steps.setStatus)
	ctx.Step(`^"([^"]*)" views the request$`, steps.view)
	ctx.Step(`^"([^"]*)" views the request contact$`, steps.viewContact)
	ctx.Step(`^"([^"]*)" lists their requests$`, steps.listMine)
	ctx.Step(`^"([^"]*)" lists their donations$`, steps.listDonations)
	ctx.Step(`^I wait (\d+) seconds?$`, steps.wait)

	// Concurrency
	ctx.Step(`^donors "([^"]*)" accept the request concurrently$`, steps.acceptConcurrently)
	ctx.Step(`^exactly one acceptance should succeed$`, steps.exactlyOneWinner)

	// Notifications
	ctx.Step(`^"([^"]*)" should have (\d+) unread notifications?$`, steps.unreadCount)
	ctx.Step(`^the first listed item should have "([^"]*)" equal to "([^"]*)"$`, steps.firstItemField)
}

type requestSteps struct {
	tc       TestContext
	statuses []int
}

func (s *requestSteps) postRequest(ctx context.Context, alias string, units int, group string) error {
	return s.create(alias, map[string]any{
		"blood_group":  group,
		"quantity":     units,
		"location":     "e2e General Hospital",
		"contact_info": "+1 555 0199",
		"urgency":      "high",
	})
}

func (s *requestSteps) postExpiringRequest(ctx context.Context, alias, group string, seconds int) error {
	return s.create(alias, map[string]any{
		"blood_group":  group,
		"quantity":     1,
		"location":     "e2e General Hospital",
		"contact_info": "+1 555 0199",
		"expires_at":   time.Now().Add(time.Duration(seconds) * time.Second).UTC().Format(time.RFC3339Nano),
	})
}

func (s *requestSteps) create(alias string, body map[string]any) error {
	if err := s.as(alias, http.MethodPost, "/requests", body); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusCreated {
		return fmt.Errorf("create request: status %d: %s", status, s.tc.GetLastResponseBody())
	}
	requestID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save(requestKey, fmt.Sprint(requestID))
	return nil
}

func (s *requestSteps) accept(ctx context.Context, alias string) error {
	return s.onRequest(alias, http.MethodPost, "/accept", nil)
}

func (s *requestSteps) complete(ctx context.Context, alias string) error {
	return s.onRequest(alias, http.MethodPost, "/complete", nil)
}

func (s *requestSteps) cancel(ctx context.Context, alias string) error {
	return s.onRequest(alias, http.MethodPost, "/cancel", nil)
}

func (s *requestSteps) setStatus(ctx context.Context, alias, status string) error {
	return s.onRequest(alias, http.MethodPatch, "/status", map[string]string{"status": status})
}

func (s *requestSteps) view(ctx context.Context, alias string) error {
	return s.onRequest(alias, http.MethodGet, "", nil)
}

func (s *requestSteps) viewContact(ctx context.Context, alias string) error {
	return s.onRequest(alias, http.MethodGet, "/contact", nil)
}

func (s *requestSteps) listMine(ctx context.Context, alias string) error {
	return s.as(alias, http.MethodGet, "/requests/mine", nil)
}

func (s *requestSteps) listDonations(ctx context.Context, alias string) error {
	return s.as(alias, http.MethodGet, "/donations/mine", nil)
}

func (s *requestSteps) wait(ctx context.Context, seconds int) error {
	select {
	case <-time.After(time.Duration(seconds) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *requestSteps) acceptConcurrently(ctx context.Context, aliases string) error {
	requestID, err := s.tc.Saved(requestKey)
	if err != nil {
		return err
	}
	donors := strings.Split(aliases, ",")
	s.statuses = make([]int, len(donors))
	errs := make([]error, len(donors))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, alias := range donors {
		wg.Add(1)
		go func(i int, alias string) {
			defer wg.Done()
			<-start
			s.statuses[i], _, errs[i] = s.tc.DoAs(strings.TrimSpace(alias), http.MethodPost, "/requests/"+requestID+"/accept", nil)
		}(i, alias)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *requestSteps) exactlyOneWinner(ctx context.Context) error {
	winners := 0
	for _, status := range s.statuses {
		switch status {
		case http.StatusCreated:
			winners++
		case http.StatusConflict, http.StatusNotFound:
		default:
			return fmt.Errorf("unexpected acceptance status %d in %v", status, s.statuses)
		}
	}
	if winners != 1 {
		return fmt.Errorf("expected exactly one successful acceptance, got %d in %v", winners, s.statuses)
	}
	return nil
}

func (s *requestSteps) unreadCount(ctx context.Context, alias string, want int) error {
	deadline := time.Now().Add(pollTimeout)
	for {
		status, body, err := s.tc.DoAs(alias, http.MethodGet, "/notifications/unread-count", nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("unread count: status %d: %s", status, body)
		}
		var resp struct {
			Unread int `json:"unread"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode unread count: %w", err)
		}
		if resp.Unread == want {
			return nil
		}
		// Counts only grow while fan-out is in flight.
		if resp.Unread > want || time.Now().After(deadline) {
			return fmt.Errorf("expected %d unread notifications for %s, got %d", want, alias, resp.Unread)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *requestSteps) firstItemField(ctx context.Context, field, want string) error {
	var list []map[string]any
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &list); err != nil {
		return fmt.Errorf("response is not a JSON list: %w", err)
	}
	if len(list) == 0 {
		return fmt.Errorf("response list is empty")
	}
	if got := fmt.Sprint(list[0][field]); got != want {
		return fmt.Errorf("expected first item %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *requestSteps) onRequest(alias, method, suffix string, body any) error {
	requestID, err := s.tc.Saved(requestKey)
	if err != nil {
		return err
	}
	return s.as(alias, method, "/requests/"+requestID+suffix, body)
}

func (s *requestSteps) as(alias, method, path string, body any) error {
	if err := s.tc.ActAs(alias); err != nil {
		return err
	}
	return s.tc.Do(method, path, body)
}

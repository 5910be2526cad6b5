package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext holds the state shared by steps within one scenario: the
// users registered so far, the acting user, the last response and any
// values saved for later steps.
type TestContext struct {
	baseURL    string
	client     *http.Client
	signingKey []byte
	issuer     string
	audience   string

	mu         sync.Mutex
	users      map[string]user
	actor      string
	saved      map[string]string
	lastStatus int
	lastBody   []byte
}

type user struct {
	id   string
	role string
}

const adminAlias = "admin"

// NewTestContext reads the target server and token settings from the
// environment. Defaults match a server started with no configuration.
func NewTestContext() *TestContext {
	tc := &TestContext{
		baseURL:    strings.TrimRight(envOr("E2E_BASE_URL", "http://localhost:8080"), "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		signingKey: []byte(envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production")),
		issuer:     envOr("JWT_ISSUER", "hemogrid"),
		audience:   envOr("JWT_AUDIENCE", "hemogrid-api"),
	}
	tc.Reset()
	return tc
}

// Reset clears scenario state. Registered users stay in the server; fresh
// ids per scenario keep scenarios independent.
func (tc *TestContext) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.users = map[string]user{adminAlias: {id: uuid.NewString(), role: "admin"}}
	tc.actor = ""
	tc.saved = map[string]string{}
	tc.lastStatus = 0
	tc.lastBody = nil
}

// RegisterUser mirrors a user into the server's directory through the admin
// API and remembers them under alias.
func (tc *TestContext) RegisterUser(alias, role, bloodGroup string, verified bool) error {
	userID := uuid.NewString()
	body := map[string]any{
		"user_id":     userID,
		"email":       fmt.Sprintf("%s+%s@e2e.hemogrid.test", alias, userID[:8]),
		"role":        role,
		"blood_group": bloodGroup,
		"verified":    verified,
	}
	status, respBody, err := tc.DoAs(adminAlias, http.MethodPost, "/admin/users", body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register %s: status %d: %s", alias, status, respBody)
	}
	tc.mu.Lock()
	tc.users[alias] = user{id: userID, role: role}
	tc.mu.Unlock()
	return nil
}

// UserID returns the id registered for alias.
func (tc *TestContext) UserID(alias string) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	u, ok := tc.users[alias]
	if !ok {
		return "", fmt.Errorf("unknown user %q", alias)
	}
	return u.id, nil
}

// ActAs makes alias the caller of subsequent Do requests. An empty alias
// sends requests without a token.
func (tc *TestContext) ActAs(alias string) error {
	if alias != "" {
		if _, err := tc.UserID(alias); err != nil {
			return err
		}
	}
	tc.mu.Lock()
	tc.actor = alias
	tc.mu.Unlock()
	return nil
}

// Do sends a request as the current actor and records the response.
func (tc *TestContext) Do(method, path string, body any) error {
	tc.mu.Lock()
	actor := tc.actor
	tc.mu.Unlock()
	status, respBody, err := tc.DoAs(actor, method, path, body)
	if err != nil {
		return err
	}
	tc.Record(status, respBody)
	return nil
}

// DoAs sends a request as alias without touching the recorded response,
// so it is safe to call from concurrent steps.
func (tc *TestContext) DoAs(alias, method, path string, body any) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if alias != "" {
		token, err := tc.token(alias)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// Record stores a response as the last one seen.
func (tc *TestContext) Record(status int, body []byte) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lastStatus = status
	tc.lastBody = body
}

func (tc *TestContext) GetLastResponseStatus() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lastBody
}

// GetResponseField reads a top-level field of the last JSON object response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var obj map[string]any
	if err := json.Unmarshal(tc.GetLastResponseBody(), &obj); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := obj[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.GetLastResponseBody())
	}
	return v, nil
}

func (tc *TestContext) Save(key, value string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.saved[key] = value
}

func (tc *TestContext) Saved(key string) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved under %q", key)
	}
	return v, nil
}

func (tc *TestContext) token(alias string) (string, error) {
	tc.mu.Lock()
	u, ok := tc.users[alias]
	tc.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown user %q", alias)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": u.id,
		"role":    u.role,
		"sub":     u.id,
		"iss":     tc.issuer,
		"aud":     []string{tc.audience},
		"iat":     now.Unix(),
		"exp":     now.Add(15 * time.Minute).Unix(),
		"jti":     uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

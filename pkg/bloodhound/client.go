// Package bloodhound is a client for the custom-node endpoints of a
// BloodHound-compatible graph-analysis platform. It covers exactly the
// surface the schema uploader needs: login/logout session management and
// the custom-nodes list/delete/register operations under /api/v2.
package bloodhound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-schema-uploader/pkg/logging"
)

const (
	// API version prefix shared by every endpoint
	apiBasePath = "/api/v2"

	// Username/password login as opposed to API-key signing
	loginMethodSecret = "secret"

	// DefaultTimeout bounds each request; the tool performs no retries
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for logs
	maxErrorBody = 512
)

// Client issues requests against one server. It holds no session state;
// the Session returned by Login is passed back in explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	instanceID string
	logger     logging.Logger
}

// NewClient creates a client for the given server address. Addresses
// without a scheme default to http, trailing slashes are dropped.
func NewClient(serverURL string, timeout time.Duration, logger logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Client{
		baseURL:    normalizeServerURL(serverURL),
		httpClient: &http.Client{Timeout: timeout},
		instanceID: uuid.New().String(),
		logger:     logger.With(logging.Component("bloodhound")),
	}
}

// BaseURL returns the normalized server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

func normalizeServerURL(raw string) string {
	raw = strings.TrimRight(raw, "/")
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return raw
}

// Login authenticates with username/password and returns the session.
// Any failure (unreachable server, non-success status, malformed or
// token-less response) surfaces as an AuthError.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body, err := json.Marshal(LoginRequest{
		LoginMethod: loginMethodSecret,
		Username:    username,
		Secret:      password,
	})
	if err != nil {
		return nil, &AuthError{Op: "login", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiBasePath+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setRequestID(req)

	c.logger.Info("Connecting to server", logging.Server(c.baseURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{Op: "login", Err: &RemoteError{
			Op:         "login",
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}}
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &AuthError{Op: "login", Err: &FormatError{Op: "login", Err: err}}
	}
	if decoded.Data.SessionToken == "" {
		return nil, &AuthError{Op: "login", Err: errors.New("response has no session_token")}
	}

	session := newSession(decoded.Data.SessionToken)
	if session.UserID == "" {
		session.UserID = decoded.Data.UserID
	}

	if !session.ExpiresAt.IsZero() {
		c.logger.Debug("Session established",
			logging.String("user_id", session.UserID),
			logging.String("expires_at", session.ExpiresAt.Format(time.RFC3339)))
	}
	return session, nil
}

// Logout invalidates the session server-side. A nil or empty session is an
// idempotent no-op. Logout never checks local expiry: handing an expired
// token to the server is still the right teardown attempt.
func (c *Client) Logout(ctx context.Context, session *Session) error {
	if session == nil || session.Token == "" {
		c.logger.Debug("No active session to log out")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiBasePath+"/logout", nil)
	if err != nil {
		return &NetworkError{Op: "logout", Err: err}
	}
	c.setAuthHeaders(req, session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "logout", Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: "logout", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

// ListCustomNodeKinds fetches every registered custom node definition
func (c *Client) ListCustomNodeKinds(ctx context.Context, session *Session) ([]CustomNodeKind, error) {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodGet, "/custom-nodes", nil, session, "list custom nodes")
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "list custom nodes", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "list custom nodes", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var decoded customNodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &FormatError{Op: "list custom nodes", Err: err}
	}
	return decoded.Data, nil
}

// DeleteCustomNodeKind deletes one custom node definition by kind name
func (c *Client) DeleteCustomNodeKind(ctx context.Context, session *Session, kindName string) error {
	if kindName == "" {
		return errors.New("delete custom node: kind name is empty")
	}

	path := "/custom-nodes/" + url.PathEscape(kindName)
	req, err := c.newAuthenticatedRequest(ctx, http.MethodDelete, path, nil, session, "delete custom node")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "delete custom node", Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: "delete custom node", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	c.logger.Debug("Deleted custom node", logging.KindName(kindName))
	return nil
}

// UploadCustomNodeModel registers the model document. The body is sent
// verbatim in a single request; merge semantics belong to the server.
func (c *Client) UploadCustomNodeModel(ctx context.Context, session *Session, body []byte) error {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodPost, "/custom-nodes", bytes.NewReader(body), session, "upload model")
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "upload model", Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: "upload model", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

// newAuthenticatedRequest builds a request carrying the bearer token and a
// request ID. It refuses a missing or locally expired session up front so
// the caller gets an AuthError instead of a remote 401.
func (c *Client) newAuthenticatedRequest(ctx context.Context, method, path string, body io.Reader, session *Session, op string) (*http.Request, error) {
	if session == nil || session.Token == "" {
		return nil, &AuthError{Op: op, Err: errors.New("no active session, login first")}
	}
	if session.Expired(time.Now()) {
		return nil, &AuthError{Op: op, Err: fmt.Errorf("session expired at %s", session.ExpiresAt.Format(time.RFC3339))}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiBasePath+path, body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	c.setAuthHeaders(req, session)
	return req, nil
}

func (c *Client) setAuthHeaders(req *http.Request, session *Session) {
	req.Header.Set("Authorization", "Bearer "+session.Token)
	c.setRequestID(req)
}

func (c *Client) setRequestID(req *http.Request) {
	req.Header.Set("X-Request-Id", uuid.New().String())
	req.Header.Set("User-Agent", "cluso-schema-uploader/"+c.instanceID)
}

// readErrorBody returns an excerpt of the response body for error messages
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// drainAndClose discards the remaining body so the connection can be reused
func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"groupwarden/internal/metrics"
	"groupwarden/internal/tracing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// Client is an authenticated client for the platform's group API.
// Transient failures (5xx, network) are retried with backoff by the
// underlying retryable client; rate limits are surfaced immediately as
// ErrRateLimited so the enforcement loop can institute its global pause.
type Client struct {
	http      *retryablehttp.Client
	baseURL   string
	authToken string
	userAgent string
}

// ClientOptions configures the platform client.
type ClientOptions struct {
	// BaseURL of the platform API, e.g. "https://api.example.com/api/1".
	BaseURL string

	// AuthToken is the session cookie value used for authentication.
	AuthToken string

	// UserAgent sent with every request. If empty, a default is used.
	UserAgent string

	// RetryMax bounds transient-error retries per request. If zero, 3 is used.
	RetryMax int

	// Timeout for a single HTTP attempt. If zero, 30 seconds is used.
	Timeout time.Duration
}

// NewClient creates a platform API client.
func NewClient(opts ClientOptions) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = "groupwarden/1.0"
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = nil
	rc.CheckRetry = checkRetry

	return &Client{
		http:      rc,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		authToken: opts.AuthToken,
		userAgent: opts.UserAgent,
	}
}

// checkRetry retries only transient conditions. Rate limits and other 4xx
// responses are returned to the caller unchanged; the loop's pause state
// machine handles 429s.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// GetGroupAuditLogs fetches the most recent audit events for a group,
// newest first, bounded by limit.
func (c *Client) GetGroupAuditLogs(ctx context.Context, groupID string, limit int) ([]AuditEvent, error) {
	ctx, span := tracing.PlatformSpan(ctx, "getGroupAuditLogs", groupID)
	defer span.End()

	endpoint := fmt.Sprintf("/groups/%s/auditLogs?n=%d", url.PathEscape(groupID), limit)
	var body struct {
		Results []AuditEvent `json:"results"`
	}
	err := c.getJSON(ctx, endpoint, &body)
	tracing.EndWithError(span, err)
	if err != nil {
		return nil, err
	}
	return body.Results, nil
}

// GetGroupRoles fetches the role definitions for a group.
func (c *Client) GetGroupRoles(ctx context.Context, groupID string) ([]Role, error) {
	ctx, span := tracing.PlatformSpan(ctx, "getGroupRoles", groupID)
	defer span.End()

	var roles []Role
	err := c.getJSON(ctx, fmt.Sprintf("/groups/%s/roles", url.PathEscape(groupID)), &roles)
	tracing.EndWithError(span, err)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// GetGroupMember fetches a user's membership record within a group.
// Returns ErrNotFound if the user is not a member.
func (c *Client) GetGroupMember(ctx context.Context, groupID, userID string) (*Member, error) {
	ctx, span := tracing.PlatformSpan(ctx, "getGroupMember", groupID)
	defer span.End()

	endpoint := fmt.Sprintf("/groups/%s/members/%s", url.PathEscape(groupID), url.PathEscape(userID))
	var member Member
	err := c.getJSON(ctx, endpoint, &member)
	tracing.EndWithError(span, err)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetUserGroups fetches the groups a user belongs to.
func (c *Client) GetUserGroups(ctx context.Context, userID string) ([]UserGroup, error) {
	ctx, span := tracing.PlatformSpan(ctx, "getUserGroups", userID)
	defer span.End()

	var groups []UserGroup
	err := c.getJSON(ctx, fmt.Sprintf("/users/%s/groups", url.PathEscape(userID)), &groups)
	tracing.EndWithError(span, err)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// CloseInstance closes a running instance. Returns ErrAlreadyClosed if the
// instance is no longer open and ErrRateLimited if the upstream throttled
// the call.
func (c *Client) CloseInstance(ctx context.Context, worldID, instanceID string) error {
	ctx, span := tracing.PlatformSpan(ctx, "closeInstance", worldID+":"+instanceID)
	defer span.End()

	endpoint := fmt.Sprintf("/instances/%s:%s", url.PathEscape(worldID), url.PathEscape(instanceID))
	err := c.do(ctx, http.MethodDelete, endpoint, nil)
	tracing.EndWithError(span, err)
	return err
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.AddCookie(&http.Cookie{Name: "auth", Value: c.authToken})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PlatformRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.PlatformRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		return c.apiError(resp, endpoint)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

// apiError maps an error response to one of the sentinel errors where the
// status (and for closures, the error message) is recognizable.
func (c *Client) apiError(resp *http.Response, endpoint string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := extractErrorMessage(data)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "already closed"):
		return ErrAlreadyClosed
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Str("endpoint", endpoint).
		Str("message", message).
		Msg("platform: request failed")

	return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: message}
}

func extractErrorMessage(data []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(data))
}

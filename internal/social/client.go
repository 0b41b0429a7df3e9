// Package social queries the external identity provider for account badge
// status and recent post history.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorRecordFunc is an optional callback for recording swallowed provider
// errors, so operators can tell "not verified" apart from "provider down".
type ErrorRecordFunc func(op string)

// Client is a read-only client for the identity provider. Both checks fail
// closed: any transport, status, or decode problem yields false, never an
// error. A provider outage can only make provisioning harder, never easier.
type Client struct {
	host    string
	apiKey  string
	http    *http.Client
	onError ErrorRecordFunc
	logger  *zap.Logger
}

// NewClient creates a Client targeting host, authenticating with apiKey.
func NewClient(host, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		host:   strings.TrimSuffix(host, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SetErrorRecord configures the swallowed-error recording callback.
func (c *Client) SetErrorRecord(fn ErrorRecordFunc) {
	c.onError = fn
}

// userInfoResponse is the subset of the provider's user info payload needed
// for the badge check.
type userInfoResponse struct {
	Data struct {
		UserName       string `json:"userName"`
		IsBlueVerified bool   `json:"isBlueVerified"`
	} `json:"data"`
}

// lastTweetsResponse is the subset of the provider's recent-posts payload
// needed for the proof check.
type lastTweetsResponse struct {
	Data struct {
		Tweets []struct {
			Text string `json:"text"`
		} `json:"tweets"`
	} `json:"data"`
}

// IsBadgeVerified reports whether handle currently carries the provider's
// verification badge.
func (c *Client) IsBadgeVerified(ctx context.Context, handle string) bool {
	var out userInfoResponse
	if err := c.getJSON(ctx, "/twitter/user/info", handle, &out); err != nil {
		c.failClosed("user_info", handle, err)
		return false
	}
	return out.Data.IsBlueVerified
}

// HasPublishedToken reports whether token appears verbatim in the text of
// one of handle's recent posts. Only the provider's "recent" page is
// scanned; older posts are not fetched.
func (c *Client) HasPublishedToken(ctx context.Context, handle, token string) bool {
	var out lastTweetsResponse
	if err := c.getJSON(ctx, "/twitter/user/last_tweets", handle, &out); err != nil {
		c.failClosed("last_tweets", handle, err)
		return false
	}
	for _, tweet := range out.Data.Tweets {
		if strings.Contains(tweet.Text, token) {
			return true
		}
	}
	return false
}

// getJSON performs an authenticated GET for handle against path and decodes
// the response into v.
func (c *Client) getJSON(ctx context.Context, path, handle string, v any) error {
	u, err := url.Parse(c.host + path)
	if err != nil {
		return fmt.Errorf("build provider URL: %w", err)
	}
	q := u.Query()
	q.Set("userName", handle)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request to %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// failClosed records a swallowed provider error. The boolean contract of
// the checks stays intact; the log line and callback are the side channel.
func (c *Client) failClosed(op, handle string, err error) {
	c.logger.Warn("social check failed closed",
		zap.String("op", op),
		zap.String("handle", handle),
		zap.Error(err),
	)
	if c.onError != nil {
		c.onError(op)
	}
}

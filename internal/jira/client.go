package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gitnotify/pkg/shared"
)

// Worklog entries are stamped with a nominal time spent, matching the
// tracker's convention for automated updates.
const worklogTimeSpent = "10m"

// Client is a minimal issue-tracker REST client. All calls are
// authenticated with basic auth and rate limited so a burst of events
// cannot hammer the tracker.
type Client struct {
	baseURL string
	creds   shared.Credentials
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient returns a client for the tracker API rooted at baseURL
// (e.g. "https://issues.apache.org/jira/rest/api/latest").
// requestsPerMinute <= 0 disables rate limiting.
func NewClient(baseURL string, creds shared.Credentials, requestsPerMinute int) *Client {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// UpdateTicket posts a comment to the ticket, or a worklog entry when
// worklog is true.
func (c *Client) UpdateTicket(ctx context.Context, ticket, text string, worklog bool) error {
	where := "comment"
	payload := map[string]any{"body": text}
	if worklog {
		where = "worklog"
		payload = map[string]any{
			"timeSpent": worklogTimeSpent,
			"comment":   text,
		}
	}
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/issue/%s/%s", ticket, where), payload)
}

// RemoteLink attaches the pull request or issue URL to the ticket. The
// URL anchor is cropped so repeated links to the same PR share a globalId
// and the tracker deduplicates them.
func (c *Client) RemoteLink(ctx context.Context, ticket, url, id string) error {
	cropped, _, _ := strings.Cut(url, "#")
	payload := map[string]any{
		"globalId": "github=" + cropped,
		"object": map[string]any{
			"url":   cropped,
			"title": fmt.Sprintf("GitHub Pull Request #%s", id),
			"icon": map[string]any{
				"url16x16": "https://github.com/favicon.ico",
			},
		},
	}
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/issue/%s/remotelink", ticket), payload)
}

// AddLabel marks the ticket as having a pull request available.
func (c *Client) AddLabel(ctx context.Context, ticket string) error {
	payload := map[string]any{
		"update": map[string]any{
			"labels": []map[string]string{{"add": "pull-request-available"}},
		},
	}
	return c.call(ctx, http.MethodPut, "/issue/"+ticket, payload)
}

func (c *Client) call(ctx context.Context, method, path string, payload any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	if c.creds.IsSet() {
		req.SetBasicAuth(c.creds.User, c.creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling tracker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("tracker returned %d for %s %s: %s", resp.StatusCode, method, path, string(detail))
	}
	return nil
}

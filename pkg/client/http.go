package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/masa-finance/timeline-poller/api/types"
)

// Client talks to a timeline-poller API server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	options    *Options
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create options: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        options.IdleConns,
		MaxIdleConnsPerHost: options.IdleConns,
		IdleConnTimeout:     90 * time.Second,
	}
	if options.ignoreTLSCert {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Transport: transport, Timeout: options.Timeout},
		options:    options,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", method, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.options.UserAgent != "" {
		req.Header.Set("User-Agent", c.options.UserAgent)
	}
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var er types.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Message, apiErr.Kind = er.Error, er.Kind
		} else {
			var sr types.StatusResponse
			if json.Unmarshal(data, &sr) == nil && sr.Message != "" {
				apiErr.Message = sr.Message
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}

// Healthz checks the liveness endpoint.
func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) SearchTweets(ctx context.Context, query string, minimum int) (*types.PostsResponse, error) {
	out := &types.PostsResponse{}
	err := c.do(ctx, http.MethodPost, "/tweets/search_tweets", types.SearchRequest{Query: query, MinimumTweets: minimum}, out)
	return out, err
}

// FollowingTimeline fetches the chronological timeline of followed accounts.
func (c *Client) FollowingTimeline(ctx context.Context, minimum int) (*types.PostsResponse, error) {
	out := &types.PostsResponse{}
	err := c.do(ctx, http.MethodPost, "/tweets/latest_timeline", types.TimelineRequest{MinimumTweets: minimum}, out)
	return out, err
}

// RecommendedTimeline fetches the algorithmic timeline.
func (c *Client) RecommendedTimeline(ctx context.Context, minimum int) (*types.PostsResponse, error) {
	out := &types.PostsResponse{}
	err := c.do(ctx, http.MethodPost, "/tweets/timeline", types.TimelineRequest{MinimumTweets: minimum}, out)
	return out, err
}

func (c *Client) Favorite(ctx context.Context, id string) (*types.StatusResponse, error) {
	out := &types.StatusResponse{}
	err := c.do(ctx, http.MethodPost, "/tweets/favorite/"+url.PathEscape(id), nil, out)
	return out, err
}

func (c *Client) Thread(ctx context.Context, id string) (*types.Thread, error) {
	out := &types.Thread{}
	err := c.do(ctx, http.MethodGet, "/tweets/thread/"+url.PathEscape(id), nil, out)
	return out, err
}

func (c *Client) CreatePost(ctx context.Context, text, replyTo string) (*types.PostDetails, error) {
	out := &types.PostDetails{}
	err := c.do(ctx, http.MethodPost, "/tweets/create", types.CreatePostRequest{Text: text, ReplyTo: replyTo}, out)
	return out, err
}

// GetTweet reads a tweet the poller has stored.
func (c *Client) GetTweet(ctx context.Context, id string) (*types.Post, error) {
	out := &types.Post{}
	err := c.do(ctx, http.MethodGet, "/tweets/"+url.PathEscape(id), nil, out)
	return out, err
}

// RecentTweets lists stored tweets, newest discoveries first. A limit of
// zero uses the server default.
func (c *Client) RecentTweets(ctx context.Context, limit int) (*types.PostsResponse, error) {
	path := "/tweets/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	out := &types.PostsResponse{}
	err := c.do(ctx, http.MethodGet, path, nil, out)
	return out, err
}

func (c *Client) Notify(ctx context.Context, n types.NotificationPayload) (*types.NotificationResponse, error) {
	out := &types.NotificationResponse{}
	err := c.do(ctx, http.MethodPost, "/notifications", n, out)
	return out, err
}

func (c *Client) StartScheduler(ctx context.Context, minimum int) (*types.StatusResponse, error) {
	out := &types.StatusResponse{}
	err := c.do(ctx, http.MethodPost, "/scheduler/start", types.SchedulerRequest{MinimumTweets: minimum}, out)
	return out, err
}

func (c *Client) StopScheduler(ctx context.Context) (*types.StatusResponse, error) {
	out := &types.StatusResponse{}
	err := c.do(ctx, http.MethodPost, "/scheduler/stop", nil, out)
	return out, err
}

// ConfigureScheduler changes the batch size; the server refuses while the
// scheduler runs.
func (c *Client) ConfigureScheduler(ctx context.Context, minimum int) (*types.SchedulerStatus, error) {
	out := &types.SchedulerStatus{}
	err := c.do(ctx, http.MethodPost, "/scheduler/config", types.SchedulerRequest{MinimumTweets: minimum}, out)
	return out, err
}

func (c *Client) SchedulerStatus(ctx context.Context) (*types.SchedulerStatus, error) {
	out := &types.SchedulerStatus{}
	err := c.do(ctx, http.MethodGet, "/scheduler/status", nil, out)
	return out, err
}

// Stats returns the raw counters snapshot.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

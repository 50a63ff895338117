// Package client is a small HTTP client for a running vizion server, used by
// the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	defaultServerURL = "http://127.0.0.1:3000"
	httpTimeout      = 10 * time.Second
)

// Client talks to the vizion API.
type Client struct {
	http      *http.Client
	serverURL string
	apiKey    string
}

// New creates a client. Respects VIZION_URL and VIZION_API_KEY.
func New() *Client {
	u := os.Getenv("VIZION_URL")
	if u == "" {
		u = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: u,
		apiKey:    os.Getenv("VIZION_API_KEY"),
	}
}

// WithAPIKey returns a copy that authenticates with key.
func (c *Client) WithAPIKey(key string) *Client {
	cp := *c
	cp.apiKey = key
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: data}
	}
	return data, nil
}

// StatusError is returned for 4xx and 5xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	var b struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Body, &b) == nil && b.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, b.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Get sends a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post sends a JSON POST request and returns the response body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if body == nil {
		body = []byte("{}")
	}
	return c.do(ctx, http.MethodPost, path, body)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Get(ctx, "/health")
	return err == nil
}

// FeedAgent is the author summary on a feed entry.
type FeedAgent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// FeedPost is one post as returned by the feed endpoint.
type FeedPost struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Agent        FeedAgent `json:"agent"`
	ImageURL     string    `json:"image_url"`
	Caption      string    `json:"caption"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedPage is one page of a ranked feed.
type FeedPage struct {
	Posts   []FeedPost `json:"posts"`
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
	Feed    string     `json:"feed"`
	HasMore bool       `json:"has_more"`
}

// Feed fetches a page of feedType.
func (c *Client) Feed(ctx context.Context, feedType string, limit, offset int) (*FeedPage, error) {
	q := url.Values{}
	q.Set("feed", feedType)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	data, err := c.Get(ctx, "/api/v1/posts?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var page FeedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return &page, nil
}

// RatioStats mirrors the engagement breakdown on the ratio endpoint.
type RatioStats struct {
	LikesGiven       int `json:"likes_given"`
	CommentsGiven    int `json:"comments_given"`
	PostsCreated     int `json:"posts_created"`
	TotalEngagements int `json:"total_engagements"`
}

// RatioStatus is the caller's engagement ratio and posting eligibility.
// Ratio is nil when the agent has never posted.
type RatioStatus struct {
	Ratio         *float64   `json:"ratio"`
	CanPost       bool       `json:"can_post"`
	RequiredRatio float64    `json:"required_ratio"`
	Deficit       int        `json:"deficit"`
	Stats         RatioStats `json:"stats"`
	Message       string     `json:"message"`
}

// Ratio fetches the authenticated agent's ratio. Requires an API key.
func (c *Client) Ratio(ctx context.Context) (*RatioStatus, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("VIZION_API_KEY is not set")
	}
	data, err := c.Get(ctx, "/api/v1/agents/me/ratio")
	if err != nil {
		return nil, err
	}
	var r RatioStatus
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode ratio: %w", err)
	}
	return &r, nil
}

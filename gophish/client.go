// Package gophish is a minimal client for the Gophish REST API.
package gophish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autophish/models"
)

// Client talks to a single Gophish server.
type Client struct {
	BaseURL            string
	APIKey             string
	HTTPClient         *http.Client
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// New creates a client with sane defaults.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gophish api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gophish api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Ping verifies the server is reachable and the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "campaigns/summary", nil, nil)
}

func (c *Client) Templates(ctx context.Context) ([]models.Template, error) {
	var resp []models.Template
	err := c.do(ctx, http.MethodGet, "templates/", nil, &resp)
	return resp, err
}

func (c *Client) CreateTemplate(ctx context.Context, t models.Template) (models.Template, error) {
	var resp models.Template
	err := c.do(ctx, http.MethodPost, "templates/", t, &resp)
	return resp, err
}

// UpdateTemplate replaces the template stored under t.ID.
func (c *Client) UpdateTemplate(ctx context.Context, t models.Template) (models.Template, error) {
	var resp models.Template
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("templates/%d", t.ID), t, &resp)
	return resp, err
}

func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var resp []models.Group
	err := c.do(ctx, http.MethodGet, "groups/", nil, &resp)
	return resp, err
}

func (c *Client) Group(ctx context.Context, id int64) (models.Group, error) {
	var resp models.Group
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("groups/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) CreateGroup(ctx context.Context, g models.Group) (models.Group, error) {
	var resp models.Group
	err := c.do(ctx, http.MethodPost, "groups/", g, &resp)
	return resp, err
}

func (c *Client) SendingProfiles(ctx context.Context) ([]models.SendingProfile, error) {
	var resp []models.SendingProfile
	err := c.do(ctx, http.MethodGet, "smtp/", nil, &resp)
	return resp, err
}

func (c *Client) SendingProfile(ctx context.Context, id int64) (models.SendingProfile, error) {
	var resp models.SendingProfile
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("smtp/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) CreateSendingProfile(ctx context.Context, s models.SendingProfile) (models.SendingProfile, error) {
	var resp models.SendingProfile
	err := c.do(ctx, http.MethodPost, "smtp/", s, &resp)
	return resp, err
}

func (c *Client) Pages(ctx context.Context) ([]models.Page, error) {
	var resp []models.Page
	err := c.do(ctx, http.MethodGet, "pages/", nil, &resp)
	return resp, err
}

func (c *Client) Page(ctx context.Context, id int64) (models.Page, error) {
	var resp models.Page
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("pages/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) CreatePage(ctx context.Context, p models.Page) (models.Page, error) {
	var resp models.Page
	err := c.do(ctx, http.MethodPost, "pages/", p, &resp)
	return resp, err
}

func (c *Client) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	var resp []models.Campaign
	err := c.do(ctx, http.MethodGet, "campaigns/", nil, &resp)
	return resp, err
}

func (c *Client) CreateCampaign(ctx context.Context, camp models.Campaign) (models.Campaign, error) {
	var resp models.Campaign
	err := c.do(ctx, http.MethodPost, "campaigns/", camp, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = c.defaultHTTPClient()
	}
	url := c.base() + "/api/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, endpoint, err)
		}
	}
	return nil
}

func (c *Client) defaultHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.InsecureSkipVerify {
		// Gophish ships with a self-signed admin certificate.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: c.Timeout, Transport: transport}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

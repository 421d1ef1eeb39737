// Package logsnag pushes contact events to the LogSnag log API.
package logsnag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"folio/internal/notify"
)

const (
	DefaultEndpoint = "https://api.logsnag.com/v1/log"
	DefaultProject  = "portfolio"
	DefaultChannel  = "contact"

	eventName      = "Contact Submission"
	maxDescription = 256
)

// Client posts events to LogSnag with a bearer token.
type Client struct {
	token      string
	project    string
	channel    string
	endpoint   string
	httpClient *http.Client
}

type Option func(*Client)

func WithProject(project string) Option {
	return func(c *Client) {
		if project != "" {
			c.project = project
		}
	}
}

func WithChannel(channel string) Option {
	return func(c *Client) {
		if channel != "" {
			c.channel = channel
		}
	}
}

// WithEndpoint overrides the API URL. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client, or nil when token is empty so callers can skip the channel.
func New(token string, opts ...Option) *Client {
	if token == "" {
		return nil
	}
	c := &Client{
		token:      token,
		project:    DefaultProject,
		channel:    DefaultChannel,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type payload struct {
	Project     string            `json:"project"`
	Channel     string            `json:"channel"`
	Event       string            `json:"event"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
	Notify      bool              `json:"notify"`
}

// Description renders the one-line summary shown in the LogSnag feed.
func Description(ev notify.Event) string {
	desc := fmt.Sprintf("%s <%s>: %s",
		orDefault(ev.Name, "Unknown"),
		orDefault(ev.Email, "no-email"),
		orDefault(ev.Subject, "No subject"),
	)
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription])
	}
	return desc
}

func (c *Client) Notify(ctx context.Context, ev notify.Event) error {
	body, err := json.Marshal(payload{
		Project:     c.project,
		Channel:     c.channel,
		Event:       eventName,
		Description: Description(ev),
		Tags:        map[string]string{"email": ev.Email},
		Notify:      true,
	})
	if err != nil {
		return fmt.Errorf("encode logsnag payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build logsnag request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logsnag request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("logsnag responded %d", resp.StatusCode)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Package api talks to the agent's REST metadata endpoints and builds the
// websocket URLs for its streaming endpoints.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opsdeck/console/internal/config"
)

// ErrNotFound is wrapped by errors for unknown hosts.
var ErrNotFound = errors.New("not found")

// Error is a non-zero code in the agent's response envelope.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

type envelope struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}

// Client makes REST calls to the agent.
type Client struct {
	baseURL   string
	token     string
	client    *http.Client
	endpoints *Endpoints
}

// NewClient creates a client for the agent at cfg.URL.
func NewClient(cfg config.ServerConfig) (*Client, error) {
	endpoints, err := NewEndpoints(cfg.URL)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		token:     cfg.Token,
		client:    &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		endpoints: endpoints,
	}, nil
}

// Endpoints returns the websocket URL builder for the same agent.
func (c *Client) Endpoints() *Endpoints { return c.endpoints }

// AuthHeader carries the bearer token for websocket dials.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// ListHosts fetches /api/v1/client.
func (c *Client) ListHosts(ctx context.Context) ([]Host, error) {
	var out []Host
	if err := c.get(ctx, "/api/v1/client", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHost fetches /api/v1/client/{addr}.
func (c *Client) GetHost(ctx context.Context, addr string) (*Host, error) {
	var h Host
	if err := c.get(ctx, "/api/v1/client/"+url.PathEscape(addr), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListDisplays fetches /api/v1/client/{addr}/rd.
func (c *Client) ListDisplays(ctx context.Context, addr string) ([]Display, error) {
	var out []Display
	if err := c.get(ctx, "/api/v1/client/"+url.PathEscape(addr)+"/rd", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServerInfo fetches /api/v1/server.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var s ServerInfo
	if err := c.get(ctx, "/api/v1/server", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Code: resp.StatusCode, Message: fmt.Sprintf("GET %s: %d %s", path, resp.StatusCode, body)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	if env.Code != 0 {
		return envelopeError(env)
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("GET %s: decode body: %w", path, err)
	}
	return nil
}

func envelopeError(env envelope) *Error {
	var msg string
	if err := json.Unmarshal(env.Body, &msg); err != nil || msg == "" {
		msg = "Error code: " + strconv.Itoa(env.Code)
	}
	return &Error{Code: env.Code, Message: msg}
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
